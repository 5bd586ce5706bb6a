// Package config loads the gateway's single JSON configuration file and
// maps it onto the option structs of the packages that consume it. Key
// names keep the deployed camelCase dialect so existing config files load
// unchanged. Validation happens once at load; downstream constructors
// re-check only what they own (the server normalizes connection specs).
package config
