package util

import "testing"

func TestParseIPWithMask(t *testing.T) {
	tests := []struct {
		name     string
		cidr     string
		wantIP   string
		wantMask int
		wantErr  bool
	}{
		{name: "valid /24", cidr: "192.168.1.100/24", wantIP: "192.168.1.100", wantMask: 24},
		{name: "valid /30", cidr: "10.1.1.1/30", wantIP: "10.1.1.1", wantMask: 30},
		{name: "valid /32", cidr: "10.0.0.1/32", wantIP: "10.0.0.1", wantMask: 32},
		{name: "invalid - no mask", cidr: "192.168.1.100", wantErr: true},
		{name: "invalid - bad IP", cidr: "999.999.999.999/24", wantErr: true},
		{name: "invalid - empty", cidr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, mask, err := ParseIPWithMask(tt.cidr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseIPWithMask() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if ip.String() != tt.wantIP {
					t.Errorf("ParseIPWithMask() IP = %v, want %v", ip.String(), tt.wantIP)
				}
				if mask != tt.wantMask {
					t.Errorf("ParseIPWithMask() mask = %v, want %v", mask, tt.wantMask)
				}
			}
		})
	}
}

func TestIsValidIPv4(t *testing.T) {
	tests := []struct {
		name  string
		ipStr string
		want  bool
	}{
		{"valid IP", "192.168.1.1", true},
		{"valid loopback", "127.0.0.1", true},
		{"valid zero", "0.0.0.0", true},
		{"valid broadcast", "255.255.255.255", true},
		{"invalid - out of range", "256.1.1.1", false},
		{"invalid - text", "invalid", false},
		{"invalid - empty", "", false},
		{"invalid - IPv6", "::1", false},
		{"invalid - partial", "192.168.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidIPv4(tt.ipStr); got != tt.want {
				t.Errorf("IsValidIPv4(%q) = %v, want %v", tt.ipStr, got, tt.want)
			}
		})
	}
}

func TestIsValidIPv4CIDR(t *testing.T) {
	tests := []struct {
		name string
		cidr string
		want bool
	}{
		{"valid /24", "192.168.1.0/24", true},
		{"valid /32", "10.0.0.1/32", true},
		{"valid /0", "0.0.0.0/0", true},
		{"invalid - no mask", "192.168.1.1", false},
		{"invalid - bad IP", "999.1.1.1/24", false},
		{"invalid - bad mask", "192.168.1.0/33", false},
		{"invalid - empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidIPv4CIDR(tt.cidr); got != tt.want {
				t.Errorf("IsValidIPv4CIDR(%q) = %v, want %v", tt.cidr, got, tt.want)
			}
		})
	}
}

func TestIPInRange(t *testing.T) {
	tests := []struct {
		name  string
		ipStr string
		cidr  string
		want  bool
	}{
		{"in range", "192.168.1.100", "192.168.1.0/24", true},
		{"at start", "192.168.1.0", "192.168.1.0/24", true},
		{"at end", "192.168.1.255", "192.168.1.0/24", true},
		{"out of range", "192.168.2.1", "192.168.1.0/24", false},
		{"different subnet", "10.0.0.1", "192.168.1.0/24", false},
		{"invalid IP", "invalid", "192.168.1.0/24", false},
		{"invalid CIDR", "192.168.1.1", "invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IPInRange(tt.ipStr, tt.cidr); got != tt.want {
				t.Errorf("IPInRange(%q, %q) = %v, want %v", tt.ipStr, tt.cidr, got, tt.want)
			}
		})
	}
}
