package ipc

import (
	"strings"
	"testing"
)

func TestDefaultEndpointHonorsTrustedEnvOverride(t *testing.T) {
	trusted := EndpointForName("ci_pipe")
	t.Setenv(EndpointEnv, trusted)

	if got := DefaultEndpoint(); got != trusted {
		t.Fatalf("DefaultEndpoint() = %q, want trusted env override %q", got, trusted)
	}
}

func TestDefaultEndpointRejectsUntrustedEnvOverride(t *testing.T) {
	untrusted := strings.Replace(EndpointForName("x"), "aigcpanel-", "other-app-", 1)
	t.Setenv(EndpointEnv, untrusted)
	t.Setenv("USERNAME", "unit-tester")

	got := DefaultEndpoint()
	if got == untrusted {
		t.Fatal("DefaultEndpoint() unexpectedly accepted untrusted env override")
	}
	if got != EndpointForName("unit-tester") {
		t.Fatalf("DefaultEndpoint() = %q, want per-user default", got)
	}
}

func TestEndpointForNameSanitizes(t *testing.T) {
	got := EndpointForName("unit user!")
	if !strings.Contains(got, "aigcpanel-unit_user_") {
		t.Fatalf("EndpointForName() = %q, want sanitized name", got)
	}
	if !endpointPattern.MatchString(got) {
		t.Fatalf("EndpointForName() = %q does not satisfy the override pattern", got)
	}
}

func TestDefaultEndpointFallbackWhenUsernameEmpty(t *testing.T) {
	t.Setenv(EndpointEnv, "")
	t.Setenv("USERNAME", "")
	t.Setenv("USER", "")

	got := DefaultEndpoint()
	if !strings.Contains(got, endpointNamePrefix) {
		t.Fatalf("DefaultEndpoint() = %q, want %q in name", got, endpointNamePrefix)
	}
	if strings.HasSuffix(got, endpointNamePrefix) || strings.HasSuffix(got, endpointNamePrefix+".sock") {
		t.Fatalf("DefaultEndpoint() = %q, name after prefix must not be empty", got)
	}
}
