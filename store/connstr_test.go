package store_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jacentio/telemetry-gateway/store"
)

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    store.ConnectionString
		wantErr bool
	}{
		{
			name:  "region only",
			input: "Region=eu-west-1",
			want:  store.ConnectionString{Region: "eu-west-1"},
		},
		{
			name:  "local endpoint with static credentials",
			input: "Endpoint=http://localhost:8000;Region=us-east-1;AccessKeyId=local;SecretAccessKey=secret",
			want: store.ConnectionString{
				Endpoint:        "http://localhost:8000",
				Region:          "us-east-1",
				AccessKeyID:     "local",
				SecretAccessKey: "secret",
			},
		},
		{
			name:  "case insensitive keys and whitespace",
			input: " region = eu-central-1 ; PROFILE=telemetry ;",
			want:  store.ConnectionString{Region: "eu-central-1", Profile: "telemetry"},
		},
		{
			name:  "endpoint only",
			input: "Endpoint=http://dynamodb:8000",
			want:  store.ConnectionString{Endpoint: "http://dynamodb:8000"},
		},
		{
			name:  "value containing equals sign",
			input: "Region=eu-west-1;SessionToken=abc==;AccessKeyId=a;SecretAccessKey=b",
			want: store.ConnectionString{
				Region:          "eu-west-1",
				SessionToken:    "abc==",
				AccessKeyID:     "a",
				SecretAccessKey: "b",
			},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "no region or endpoint", input: "Profile=default", wantErr: true},
		{name: "unknown key", input: "Region=eu-west-1;AccountName=foo", wantErr: true},
		{name: "segment without equals", input: "Region=eu-west-1;garbage", wantErr: true},
		{name: "access key without secret", input: "Region=eu-west-1;AccessKeyId=a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ParseConnectionString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, store.ErrInvalidConnectionString) {
					t.Errorf("expected ErrInvalidConnectionString, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConnectionString_StringRedactsSecrets(t *testing.T) {
	cs := store.ConnectionString{
		Region:          "eu-west-1",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "super-secret",
		SessionToken:    "token",
	}

	s := cs.String()
	if strings.Contains(s, "super-secret") || strings.Contains(s, "token;") || strings.HasSuffix(s, "=token") {
		t.Errorf("expected secrets to be redacted, got %q", s)
	}
	if !strings.Contains(s, "Region=eu-west-1") || !strings.Contains(s, "AccessKeyId=AKIA") {
		t.Errorf("expected non-secret values, got %q", s)
	}
}
