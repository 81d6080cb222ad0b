package models

import (
	"testing"
)

func TestNewRequestMetadata_Complete(t *testing.T) {
	metadata := NewRequestMetadata("192.168.1.1", "curl/7.68.0")

	if metadata["ip_address"] != "192.168.1.1" {
		t.Errorf("expected ip_address 192.168.1.1, got %v", metadata["ip_address"])
	}
	if metadata["user_agent"] != "curl/7.68.0" {
		t.Errorf("expected user_agent curl/7.68.0, got %v", metadata["user_agent"])
	}
}

func TestNewRequestMetadata_OmitEmptyFields(t *testing.T) {
	metadata := NewRequestMetadata("", "")

	if _, hasIP := metadata["ip_address"]; hasIP {
		t.Errorf("expected ip_address to be omitted when empty, but found: %v", metadata["ip_address"])
	}
	if _, hasUA := metadata["user_agent"]; hasUA {
		t.Errorf("expected user_agent to be omitted when empty, but found: %v", metadata["user_agent"])
	}
}

func TestAuditMetadata_ScanValueRoundTrip(t *testing.T) {
	original := AuditMetadata{"reason": "logout"}

	v, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var scanned AuditMetadata
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if scanned["reason"] != "logout" {
		t.Errorf("expected reason logout, got %v", scanned["reason"])
	}
}

func TestAuditMetadata_ScanNil(t *testing.T) {
	var m AuditMetadata
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error: %v", err)
	}
	if m == nil || len(m) != 0 {
		t.Errorf("expected empty metadata, got %v", m)
	}
}
