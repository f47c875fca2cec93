package azbus

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azadmin "github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"
)

var (
	// lots of docs by MS on how these limits are set to various values here
	// https://docs.microsoft.com/en-us/azure/service-bus-messaging/service-bus-quotas
	defaultMaxMessageSize = int64(256 * 1024)
	ErrMessageOversized   = errors.New("message is too large")
)

// AZAdminClient provides access to the administrative client for the message
// bus: queue, topic, subscription and rule management. Services that self
// manage entities are the exceptional case and co-ordination with devops is
// required before using this mechanism.
type AZAdminClient struct {
	ConnectionString string
	log              Logger
	admin            *azadmin.Client
}

func NewAZAdminClient(log Logger, connectionString string) AZAdminClient {
	return AZAdminClient{
		ConnectionString: connectionString,
		log:              log,
	}
}

// Open - connects and returns the azure admin Client interface that allows
// creation of topics etc. Note that creation is cached.
func (c *AZAdminClient) Open() (*azadmin.Client, error) {

	if c.admin != nil {
		return c.admin, nil
	}

	if c.ConnectionString == "" {
		return nil, fmt.Errorf("failed to create admin client: config must provide a connection string")
	}

	c.log.Debugf("Get new Admin client using ConnectionString")
	admin, err := azadmin.NewClientFromConnectionString(
		c.ConnectionString,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating new admin client: %w", NewAzbusError(err))
	}
	c.admin = admin
	return c.admin, nil
}

// CreateQueue creates a queue with the service defaults.
func (c *AZAdminClient) CreateQueue(ctx context.Context, queueName string) error {
	admin, err := c.Open()
	if err != nil {
		return err
	}
	_, err = admin.CreateQueue(ctx, queueName, nil)
	if err != nil {
		return fmt.Errorf("failed to create queue %s: %w", queueName, NewAzbusError(err))
	}
	return nil
}

// GetQueue returns the queue properties, or nil if the queue does not exist.
func (c *AZAdminClient) GetQueue(ctx context.Context, queueName string) (*azadmin.QueueProperties, error) {
	admin, err := c.Open()
	if err != nil {
		return nil, err
	}
	q, err := admin.GetQueue(ctx, queueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue properties: %w", NewAzbusError(err))
	}
	if q == nil {
		return nil, nil
	}
	return &q.QueueProperties, nil
}

func (c *AZAdminClient) DeleteQueue(ctx context.Context, queueName string) error {
	admin, err := c.Open()
	if err != nil {
		return err
	}
	_, err = admin.DeleteQueue(ctx, queueName, nil)
	if err != nil {
		return fmt.Errorf("failed to delete queue %s: %w", queueName, NewAzbusError(err))
	}
	return nil
}

// CreateTopic creates a topic with the service defaults.
func (c *AZAdminClient) CreateTopic(ctx context.Context, topicName string) error {
	admin, err := c.Open()
	if err != nil {
		return err
	}
	_, err = admin.CreateTopic(ctx, topicName, nil)
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topicName, NewAzbusError(err))
	}
	return nil
}

// GetTopic returns the topic properties, or nil if the topic does not exist.
func (c *AZAdminClient) GetTopic(ctx context.Context, topicName string) (*azadmin.TopicProperties, error) {
	admin, err := c.Open()
	if err != nil {
		return nil, err
	}
	t, err := admin.GetTopic(ctx, topicName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get topic properties: %w", NewAzbusError(err))
	}
	if t == nil {
		return nil, nil
	}
	return &t.TopicProperties, nil
}

func (c *AZAdminClient) DeleteTopic(ctx context.Context, topicName string) error {
	admin, err := c.Open()
	if err != nil {
		return err
	}
	_, err = admin.DeleteTopic(ctx, topicName, nil)
	if err != nil {
		return fmt.Errorf("failed to delete topic %s: %w", topicName, NewAzbusError(err))
	}
	return nil
}

// CreateSubscription creates a subscription on the named topic with the
// service defaults.
func (c *AZAdminClient) CreateSubscription(ctx context.Context, topicName, subscriptionName string) error {
	admin, err := c.Open()
	if err != nil {
		return err
	}
	_, err = admin.CreateSubscription(ctx, topicName, subscriptionName, nil)
	if err != nil {
		return fmt.Errorf("failed to create subscription %s.%s: %w", topicName, subscriptionName, NewAzbusError(err))
	}
	return nil
}

// GetSubscription returns the subscription properties, or nil if it does not
// exist.
func (c *AZAdminClient) GetSubscription(ctx context.Context, topicName, subscriptionName string) (*azadmin.SubscriptionProperties, error) {
	admin, err := c.Open()
	if err != nil {
		return nil, err
	}
	s, err := admin.GetSubscription(ctx, topicName, subscriptionName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription properties: %w", NewAzbusError(err))
	}
	if s == nil {
		return nil, nil
	}
	return &s.SubscriptionProperties, nil
}

func (c *AZAdminClient) DeleteSubscription(ctx context.Context, topicName, subscriptionName string) error {
	admin, err := c.Open()
	if err != nil {
		return err
	}
	_, err = admin.DeleteSubscription(ctx, topicName, subscriptionName, nil)
	if err != nil {
		return fmt.Errorf("failed to delete subscription %s.%s: %w", topicName, subscriptionName, NewAzbusError(err))
	}
	return nil
}

func (c *AZAdminClient) GetQueueMaxMessageSize(queueName string) (int64, error) {
	admin, err := c.Open()
	if err != nil {
		return 0, err
	}
	q, err := admin.GetQueue(context.Background(), queueName, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get queue properties: %w", NewAzbusError(err))
	}
	if q == nil {
		return 0, fmt.Errorf("queue %s does not exist", queueName)
	}
	c.log.DebugR("queue properties", q)
	if q.MaxMessageSizeInKilobytes != nil {
		n := *q.MaxMessageSizeInKilobytes
		return n * 1024, nil
	}
	// For non-Premium accounts the default is 256KiB and is not returned by GetQueue
	return defaultMaxMessageSize, nil
}

func (c *AZAdminClient) GetTopicMaxMessageSize(topicName string) (int64, error) {
	admin, err := c.Open()
	if err != nil {
		return 0, err
	}
	t, err := admin.GetTopic(context.Background(), topicName, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get topic properties: %w", NewAzbusError(err))
	}
	if t == nil {
		return 0, fmt.Errorf("topic %s does not exist", topicName)
	}
	c.log.DebugR("topic properties", t)
	if t.MaxMessageSizeInKilobytes != nil {
		n := *t.MaxMessageSizeInKilobytes
		return n * 1024, nil
	}
	// For non-Premium accounts the default is 256KiB and is not returned by GetTopic
	return defaultMaxMessageSize, nil
}

// CreateRule creates a SQL-filter rule on a subscription.
func (c *AZAdminClient) CreateRule(ctx context.Context, topicName, subscriptionName, ruleName, ruleString string) error {
	admin, err := c.Open()
	if err != nil {
		return err
	}
	_, err = admin.CreateRule(
		ctx,
		topicName,
		subscriptionName,
		&azadmin.CreateRuleOptions{
			Name: &ruleName,
			Filter: &azadmin.SQLFilter{
				Expression: ruleString,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create rule %s on %s.%s: %w", ruleName, topicName, subscriptionName, NewAzbusError(err))
	}
	return nil
}

// GetRule returns the rule properties, or nil if the rule does not exist.
func (c *AZAdminClient) GetRule(ctx context.Context, topicName, subscriptionName, ruleName string) (*azadmin.RuleProperties, error) {
	admin, err := c.Open()
	if err != nil {
		return nil, err
	}
	// Strangely an error is not generated for a 404.
	// Found this by reading the unittests...
	response, err := admin.GetRule(ctx, topicName, subscriptionName, ruleName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s on %s.%s: %w", ruleName, topicName, subscriptionName, NewAzbusError(err))
	}
	if response == nil {
		return nil, nil
	}
	return &response.RuleProperties, nil
}

// UpdateRule replaces the SQL filter on an existing rule.
func (c *AZAdminClient) UpdateRule(ctx context.Context, topicName, subscriptionName, ruleName, ruleString string) error {
	admin, err := c.Open()
	if err != nil {
		return err
	}
	_, err = admin.UpdateRule(
		ctx,
		topicName,
		subscriptionName,
		azadmin.RuleProperties{
			Name: ruleName,
			Filter: &azadmin.SQLFilter{
				Expression: ruleString,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to update rule %s on %s.%s: %w", ruleName, topicName, subscriptionName, NewAzbusError(err))
	}
	return nil
}

func (c *AZAdminClient) DeleteRule(ctx context.Context, topicName, subscriptionName, ruleName string) error {
	admin, err := c.Open()
	if err != nil {
		return err
	}
	_, err = admin.DeleteRule(ctx, topicName, subscriptionName, ruleName, nil)
	if err != nil {
		return fmt.Errorf("failed to delete rule %s on %s.%s: %w", ruleName, topicName, subscriptionName, NewAzbusError(err))
	}
	return nil
}

// EnsureSubscriptionRule ensures the named rule is set on the subscription and
// creates it from the supplied filter if not. Note: When the ruleName exists,
// we do not attempt to check the supplied filter matches the existing filter.
func (c *AZAdminClient) EnsureSubscriptionRule(
	ctx context.Context,
	topicName, subscriptionName string,
	ruleName string,
	ruleString string,
) error {

	admin, err := c.Open()
	if err != nil {
		return err
	}
	// The default rule matches everything. If its not removed all the other
	// filters are effectively ignored. Removal is idempotent. So we always
	// remove it.
	if _, err = admin.DeleteRule(ctx, topicName, subscriptionName, "$Default", nil); err != nil {
		var respError *azcore.ResponseError
		if !errors.As(err, &respError) || respError.StatusCode != http.StatusNotFound {
			c.log.Infof(
				"DeleteRule failed for topicname=%s subname=%s, rulename=%s: %v",
				topicName,
				subscriptionName,
				"$Default",
				err.Error(),
			)
			return err
		}
	}

	// Attempt to get the rule - strangely an error is not generated for a 404
	response, err := admin.GetRule(ctx, topicName, subscriptionName, ruleName, nil)
	if err != nil {
		c.log.Infof(
			"GetRule failed for topicname=%s subname=%s, rulename=%s: %v",
			topicName,
			subscriptionName,
			ruleName,
			err.Error(),
		)
		return err
	}

	// Rule does not exist so create it
	if response == nil {
		c.log.Debugf(
			"Rule does not exist for topicname=%s subname=%s, rulename=%s",
			topicName,
			subscriptionName,
			ruleName,
		)
		return c.CreateRule(ctx, topicName, subscriptionName, ruleName, ruleString)
	}

	c.log.Debugf(
		"UpdateRule for topicname=%s subname=%s, rulename=%s, ruleString=%q",
		topicName,
		subscriptionName,
		ruleName,
		ruleString,
	)
	_, err = admin.UpdateRule(
		ctx,
		topicName,
		subscriptionName,
		azadmin.RuleProperties{
			Name: ruleName,
			Filter: &azadmin.SQLFilter{
				Expression: ruleString,
			},
		},
	)
	if err != nil {
		c.log.Infof(
			"UpdateRule failed for topicname=%s subname=%s, rulename=%s, ruleString=%q: %v",
			topicName,
			subscriptionName,
			ruleName,
			ruleString,
			err.Error(),
		)
		return err
	}

	return nil
}
