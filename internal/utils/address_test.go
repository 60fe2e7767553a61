package utils

import (
	"strings"
	"testing"
)

func TestIsValidAddress(t *testing.T) {
	testCases := []struct {
		name    string
		address string
		valid   bool
	}{
		{"checksummed", "0xf91aAB71fC16dA79c8ACFAD67aF7C9b39588B246", true},
		{"lower case", "0xf91aab71fc16da79c8acfad67af7c9b39588b246", true},
		{"missing prefix", "f91aab71fc16da79c8acfad67af7c9b39588b246", false},
		{"too short", "0xf91aab71fc16da79c8acfad67af7c9b39588b2", false},
		{"non-hex", "0xzzzaab71fc16da79c8acfad67af7c9b39588b246", false},
		{"empty", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidAddress(tc.address); got != tc.valid {
				t.Errorf("IsValidAddress(%q) = %v, want %v", tc.address, got, tc.valid)
			}
		})
	}
}

func TestNormalizeAddressIdempotent(t *testing.T) {
	addr := "0xf91aAB71fC16dA79c8ACFAD67aF7C9b39588B246"

	once := NormalizeAddress(addr)
	twice := NormalizeAddress(once)

	if once != twice {
		t.Errorf("normalize not idempotent: %q != %q", once, twice)
	}
	if once != strings.ToLower(addr) {
		t.Errorf("NormalizeAddress(%q) = %q, want lower-case form", addr, once)
	}
}

func TestNormalizeAddressInvalidUnchanged(t *testing.T) {
	if got := NormalizeAddress("not-an-address"); got != "not-an-address" {
		t.Errorf("invalid address mutated: %q", got)
	}
}

func TestChecksumAddress(t *testing.T) {
	// Reference vectors from EIP-55.
	testCases := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}

	for _, want := range testCases {
		got, err := ChecksumAddress(strings.ToLower(want))
		if err != nil {
			t.Fatalf("ChecksumAddress: %v", err)
		}
		if got != want {
			t.Errorf("ChecksumAddress = %s, want %s", got, want)
		}
	}
}

func TestChecksumAddressInvalid(t *testing.T) {
	if _, err := ChecksumAddress("0x123"); err == nil {
		t.Error("expected error for invalid address")
	}
}
