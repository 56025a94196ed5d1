// Package config loads the chat-gateway YAML configuration, expanding
// ${VAR} environment references and parsing duration strings.
package config
