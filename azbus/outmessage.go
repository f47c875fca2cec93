package azbus

// We dont use With style options as this is executed in the hotpath.
func NewOutMessage(data []byte) *OutMessage {
	var o OutMessage
	return newOutMessage(&o, data)
}

// function outlining
func newOutMessage(o *OutMessage, data []byte) *OutMessage {
	o.Body = data
	o.ApplicationProperties = make(map[string]any)
	return o
}

// OutMessageSetProperty adds a key-value pair to an OutMessage.
func OutMessageSetProperty(o *OutMessage, k string, v any) {
	if o.ApplicationProperties == nil {
		o.ApplicationProperties = make(map[string]any)
	}
	o.ApplicationProperties[k] = v
}

func OutMessageProperties(o *OutMessage) map[string]any {
	if o.ApplicationProperties != nil {
		return o.ApplicationProperties
	}
	return make(map[string]any)
}
