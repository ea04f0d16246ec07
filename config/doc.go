// Package config provides unified configuration loading for docqa.
//
// Configuration precedence: defaults → YAML file → environment variables.
// Environment overrides use the DOCQA_ prefix with section tags, e.g.
// DOCQA_SERVER_HTTP_PORT=9090 or DOCQA_LLM_API_KEY=sk-....
package config
