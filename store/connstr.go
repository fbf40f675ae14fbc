package store

import (
	"fmt"
	"strings"
)

// ConnectionString holds the parsed form of a storage connection string.
//
// The format is a semicolon-separated list of Key=Value pairs, with keys
// matched case-insensitively:
//
//	Region=eu-west-1
//	Endpoint=http://localhost:8000;Region=us-east-1;AccessKeyId=local;SecretAccessKey=local
//	Region=eu-west-1;Profile=telemetry
type ConnectionString struct {
	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ParseConnectionString parses s. Empty segments are ignored. At least one of
// Region or Endpoint is required, and static credentials come as a pair.
func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return ConnectionString{}, fmt.Errorf("%w: segment %q has no '='", ErrInvalidConnectionString, part)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "region":
			cs.Region = value
		case "endpoint":
			cs.Endpoint = value
		case "profile":
			cs.Profile = value
		case "accesskeyid":
			cs.AccessKeyID = value
		case "secretaccesskey":
			cs.SecretAccessKey = value
		case "sessiontoken":
			cs.SessionToken = value
		default:
			return ConnectionString{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConnectionString, key)
		}
	}

	if cs.Region == "" && cs.Endpoint == "" {
		return ConnectionString{}, fmt.Errorf("%w: Region or Endpoint is required", ErrInvalidConnectionString)
	}
	if (cs.AccessKeyID == "") != (cs.SecretAccessKey == "") {
		return ConnectionString{}, fmt.Errorf("%w: AccessKeyId and SecretAccessKey must be set together", ErrInvalidConnectionString)
	}
	return cs, nil
}

// String renders the connection string with secrets redacted.
func (cs ConnectionString) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("Region", cs.Region)
	add("Endpoint", cs.Endpoint)
	add("Profile", cs.Profile)
	add("AccessKeyId", cs.AccessKeyID)
	if cs.SecretAccessKey != "" {
		add("SecretAccessKey", "REDACTED")
	}
	if cs.SessionToken != "" {
		add("SessionToken", "REDACTED")
	}
	return strings.Join(parts, ";")
}
