package engine

import (
	"errors"
	"strings"
	"testing"

	"taskanchor/internal/canonical"
	"taskanchor/internal/domain"
)

func TestNormalizeRequiredFields(t *testing.T) {
	cases := []struct {
		name  string
		in    PayloadInput
		field string
	}{
		{"missing transaction id", PayloadInput{TaskType: domain.TypeLiquidation}, "transaction_id"},
		{"unknown type", PayloadInput{TransactionID: "t", TaskType: "renovation"}, "task_type"},
		{"liquidation without price", PayloadInput{TransactionID: "t", TaskType: domain.TypeLiquidation, CompanyAndArtist: "A", DateDeadline: "2026-01-01"}, "target_price_eth"},
		{"acquisition without deadline", PayloadInput{TransactionID: "t", TaskType: domain.TypeAcquisition, CompanyAndArtist: "A", TargetPriceEth: "1"}, "date_deadline"},
		{"authorization without scope", PayloadInput{TransactionID: "t", TaskType: domain.TypeAuthorization, CompanyAndArtist: "A", DateDeadline: "2026-01-01"}, "scope"},
		{"arbitrage without currency", PayloadInput{TransactionID: "t", TaskType: domain.TypeArbitrage, TargetPricePerToken: "2", Amount: "10", Duration: "30d", Deadline: "2026-01-01"}, "currency"},
		{"vault without verification", PayloadInput{TransactionID: "t", TaskType: domain.TypeVault, CompanyAndArtist: "A"}, "technical_verification"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalizePayload(tc.in)
			var perr *InvalidPayloadError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *InvalidPayloadError", err)
			}
			if perr.Field != tc.field {
				t.Fatalf("field = %q, want %q", perr.Field, tc.field)
			}
		})
	}
}

func TestNormalizeExplicitNulls(t *testing.T) {
	n, err := normalizePayload(PayloadInput{
		TransactionID:    "txn-n1",
		TaskType:         domain.TypeAcquisition,
		CompanyAndArtist: "Northwind / Vega",
		TargetPriceEth:   "3.2",
		DateDeadline:     "2026-06-01",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, raw, err := canonical.Sum(n.payload)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"chain":null`, `"platform":null`, `"priority":null`, `"details":null`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("canonical form missing %s: %s", key, raw)
		}
	}
}

func TestNormalizeOmittedEqualsEmpty(t *testing.T) {
	base := PayloadInput{
		TransactionID:    "txn-n2",
		TaskType:         domain.TypeLiquidation,
		CompanyAndArtist: "A",
		TargetPriceEth:   "1",
		DateDeadline:     "2026-01-01",
	}
	withEmpty := base
	withEmpty.Details = ""

	n1, _ := normalizePayload(base)
	n2, _ := normalizePayload(withEmpty)
	h1, _, _ := canonical.Sum(n1.payload)
	h2, _, _ := canonical.Sum(n2.payload)
	if h1 != h2 {
		t.Fatal("omitted and empty optional hashed differently")
	}
}

func TestNormalizeVaultShape(t *testing.T) {
	n, err := normalizePayload(PayloadInput{
		TransactionID:         "txn-n3",
		TaskType:              domain.TypeVault,
		CompanyAndArtist:      "Northwind / Vega",
		TechnicalVerification: "checksum 7c1f verified",
		Chain:                 "ethereum",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, raw, err := canonical.Sum(n.payload)
	if err != nil {
		t.Fatal(err)
	}
	// Vault carries no chain/platform/priority fields at all, so a supplied
	// chain never reaches the canonical form.
	for _, key := range []string{`"chain"`, `"platform"`, `"priority"`} {
		if strings.Contains(string(raw), key) {
			t.Fatalf("vault canonical form leaked %s: %s", key, raw)
		}
	}
	if n.chain != nil {
		t.Fatal("vault normalized with a chain column")
	}
}

func TestNormalizeCanonicalKeyOrder(t *testing.T) {
	n, err := normalizePayload(PayloadInput{
		TransactionID:       "txn-n4",
		TaskType:            domain.TypeArbitrage,
		TargetPricePerToken: "0.004",
		Amount:              "125000",
		Currency:            "USDC",
		Duration:            "14d",
		Deadline:            "2026-02-15",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, raw, err := canonical.Sum(n.payload)
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	if strings.Index(s, `"amount"`) > strings.Index(s, `"currency"`) ||
		strings.Index(s, `"currency"`) > strings.Index(s, `"deadline"`) {
		t.Fatalf("keys not sorted: %s", s)
	}
}
