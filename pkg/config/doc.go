/*
Package config loads ConfigDesc from an optional YAML file (pkg/config's
LoadFile) and provides BindFlags/ApplyFlags for overriding individual
fields with cobra flags, mirroring the layered config precedence
cmd/warren/main.go establishes with plain cobra flags. cmd/taskcomputer's
run command registers and applies its own override flags instead.
*/
package config
