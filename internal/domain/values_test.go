package domain

import "testing"

func TestNewDeviceName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    DeviceName
		wantErr bool
	}{
		{"plain", "gateway-01", "gateway-01", false},
		{"trimmed", "  sensor  ", "sensor", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"too long", string(make([]byte, 101)), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDeviceName(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDeviceName(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NewDeviceName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewIPAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"192.168.1.10", "192.168.1.10", false},
		{" 10.0.0.1 ", "10.0.0.1", false},
		{"::ffff:10.0.0.1", "10.0.0.1", false},
		{"2001:db8::1", "2001:db8::1", false},
		{"fe80::1%eth0", "", true},
		{"256.1.1.1", "", true},
		{"gateway.local", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NewIPAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewIPAddress(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("NewIPAddress(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewMACAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    MACAddress
		wantErr bool
	}{
		{"AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff", false},
		{"aa-bb-cc-dd-ee-01", "aa:bb:cc:dd:ee:01", false},
		{"aabb.ccdd.ee02", "aa:bb:cc:dd:ee:02", false},
		{"aa:bb:cc", "", true},
		{"00:00:5e:00:53:01:02:03", "", true},
		{"zz:bb:cc:dd:ee:ff", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NewMACAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMACAddress(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NewMACAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    Email
		wantErr bool
	}{
		{"Admin@Example.com", "admin@example.com", false},
		{"  ops@iot.example.org ", "ops@iot.example.org", false},
		{"no-at-sign", "", true},
		{"@example.com", "", true},
		{"a@b@example.com", "", true},
		{"user@localhost", "", true},
		{"user name@example.com", "", true},
		{"user@", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NewEmail(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEmail(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NewEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoleRank(t *testing.T) {
	if !(RoleSuperAdmin.Rank() > RoleAdmin.Rank() && RoleAdmin.Rank() > RoleUser.Rank()) {
		t.Fatal("expected SUPERADMIN > ADMIN > USER")
	}
	if Role("OWNER").Valid() {
		t.Error("unknown role should not be valid")
	}
	if Role("OWNER").Rank() != 0 {
		t.Error("unknown role should rank 0")
	}
}

func TestTenantSettingsValidate(t *testing.T) {
	s := DefaultTenantSettings([16]byte{1})
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}

	bad := *s
	for _, tz := range []string{"Mars/Olympus", "", "Local"} {
		bad.Timezone = tz
		if err := bad.Validate(); err != ErrInvalidTimezone {
			t.Errorf("timezone %q: expected ErrInvalidTimezone, got %v", tz, err)
		}
	}

	good := *s
	for _, tz := range []string{"UTC", "Europe/Berlin", "America/Argentina/Buenos_Aires"} {
		good.Timezone = tz
		if err := good.Validate(); err != nil {
			t.Errorf("timezone %q should validate, got %v", tz, err)
		}
	}

	bad = *s
	bad.DeviceOfflineAfterSeconds = 5
	if err := bad.Validate(); err != ErrInvalidOfflineAfter {
		t.Errorf("expected ErrInvalidOfflineAfter, got %v", err)
	}

	bad = *s
	bad.SSHIdleTimeoutSeconds = 0
	if err := bad.Validate(); err != ErrInvalidSSHIdleTimeout {
		t.Errorf("expected ErrInvalidSSHIdleTimeout, got %v", err)
	}

	bad = *s
	bad.MetricsRetentionDays = 0
	if err := bad.Validate(); err != ErrInvalidRetention {
		t.Errorf("expected ErrInvalidRetention, got %v", err)
	}
}
