// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// which is how credentials are normally supplied:
//
//	credentials:
//	  consumer_key: ${TWEETSTREAM_CONSUMER_KEY}
package config
