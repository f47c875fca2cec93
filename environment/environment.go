package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/asbconnect/go-asbconnect/logger"
)

const (
	commaSeparator = ","
)

// GetLogLevel returns the loglevel or a default of INFO. This is called before
// any logger is available. i.e. don't use a logger here.
func GetLogLevel() string {
	value, ok := os.LookupEnv("LOGLEVEL")
	if !ok {
		return logger.InfoLevel
	}
	return value
}

// GetWithDefault returns value of environment variable.
// If the environment variable does not exist or is empty,
// then the default value is returned.
func GetWithDefault(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		value = fallback
	}
	return value
}

// GetOrFatal returns the key's value or logs a Fatal error (and exits)
func GetOrFatal(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		logger.Sugar.Panicf("required environment variable is not defined: %s", key)
	}
	return value
}

// GetRequired gets the value for the key, or an error if it is not set.
func GetRequired(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("required environment variable '%s' is not defined", key)
	}
	return value, nil
}

// GetIntWithDefault returns value of environment variable that is
// expected to be an int.
// If the environment variable does not exist or is incorrect,
// then the default value is returned.
func GetIntWithDefault(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(val)
	if err != nil {
		logger.Sugar.Infof("`%s' can not be converted to an integer. defaulting to %v. err=%v", key, fallback, err)
		return fallback
	}
	return value
}

// GetIntOrFatal returns value of environment variable that is
// expected to be an int, otherwise logs a Fatal error (and exits)
func GetIntOrFatal(key string) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		logger.Sugar.Panicf("required environment variable is not defined: %s", key)
	}
	value, err := strconv.Atoi(val)
	if err != nil {
		logger.Sugar.Panicf("unable to convert %s value to int: %v", key, err)
	}
	return value
}

// GetSecondsWithDefault returns the value of an environment variable that is
// expressed as a whole number of seconds.
func GetSecondsWithDefault(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(val)
	if err != nil {
		logger.Sugar.Infof("`%s' can not be converted to seconds. defaulting to %v. err=%v", key, fallback, err)
		return fallback
	}
	return time.Duration(value) * time.Second
}

// GetTruthy returns true if key is set to a value that is truthy. Returns
// false otherwise.
func GetTruthy(key string) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	// t,true,True,1 are all examples of 'truthy' values understood by ParseBool
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return b
}

// GetTruthyOrFatal returns true if key is set to a value that is truthy.
// Fatal if the key is unset or unparseable.
func GetTruthyOrFatal(key string) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		logger.Sugar.Panicf("environment variable %s not found", key)
	}
	// t,true,True,1 are all examples of 'truthy' values understood by ParseBool
	b, err := strconv.ParseBool(value)
	if err != nil {
		logger.Sugar.Panicf("environment variable %s not valid truthy value: %v", key, err)
	}
	return b
}

// GetListOrFatal returns the key's value as a list or logs a Fatal error (and
// exits). The value is expected to be a csv.
func GetListOrFatal(key string) []string {
	value := GetOrFatal(key)
	return strings.Split(value, commaSeparator)
}
