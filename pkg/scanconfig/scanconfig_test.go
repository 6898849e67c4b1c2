package scanconfig

import "testing"

func TestDefaultRequiresTargetsToValidate(t *testing.T) {
	c := Default()
	if err := c.Validate(); err == nil {
		t.Fatalf("expected Validate to reject a config with no targets")
	}
	c.Targets = []string{"192.0.2.0/24"}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBadPortRange(t *testing.T) {
	c := Default()
	c.Targets = []string{"192.0.2.1"}
	c.Ports = "not-a-port-range"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected Validate to reject a malformed port range")
	}
}

func TestValidateRejectsNegativeDecoys(t *testing.T) {
	c := Default()
	c.Targets = []string{"192.0.2.1"}
	c.Decoys = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected Validate to reject negative decoys")
	}
}
