// Package config loads the YAML configuration file that drives a master
// or worker process (spec §6's `-s {TCP,AES,HMAC,AES+HMAC}` CLI surface,
// made declarative): worker addresses, connection timeouts, the selected
// transport security variant, and whatever key or certificate material
// that variant needs.
package config
