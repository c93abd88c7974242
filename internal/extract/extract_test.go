// ABOUTME: Tests for entity extraction and value canonicalization
// ABOUTME: Covers scan passes, plausibility limits, and idempotency

package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_PhoneAndHandle(t *testing.T) {
	got := Scan("call 9876543210 or pay me@upi")

	require.Len(t, got, 2)
	assert.Equal(t, Entity{Kind: KindPaymentHandle, Value: "me@upi"}, got[0])
	assert.Equal(t, Entity{Kind: KindPhoneNumber, Value: "9876543210"}, got[1])
}

func TestScan_SchemeURL(t *testing.T) {
	got := Scan("verify your account at HTTP://Fake-Bank.example/verify now!")

	require.Len(t, got, 1)
	assert.Equal(t, Entity{Kind: KindURL, Value: "fake-bank.example/verify"}, got[0])
}

func TestScan_BareDomain(t *testing.T) {
	got := Scan("just open secure-refund.in and follow the steps")

	require.Len(t, got, 1)
	assert.Equal(t, Entity{Kind: KindURL, Value: "secure-refund.in"}, got[0])
}

func TestScan_EmailIsNeitherHandleNorURL(t *testing.T) {
	got := Scan("write to support9876543210@gmail.com for help")

	assert.Empty(t, got, "emails must not surface as handles, URLs or phones")
}

func TestScan_URLDigitsAreNotPhones(t *testing.T) {
	got := Scan("track it at http://pay.example/9876543210")

	require.Len(t, got, 1)
	assert.Equal(t, KindURL, got[0].Kind)
}

func TestScan_HandleDigitsAreNotPhones(t *testing.T) {
	got := Scan("send to 9876543210@ybl today")

	require.Len(t, got, 1)
	assert.Equal(t, Entity{Kind: KindPaymentHandle, Value: "9876543210@ybl"}, got[0])
}

func TestScan_PhonePlausibility(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Entity
	}{
		{
			name: "bare national number",
			text: "my number is 9876543210",
			want: []Entity{{Kind: KindPhoneNumber, Value: "9876543210"}},
		},
		{
			name: "formatted with country code",
			text: "whatsapp +91-98765-43210 anytime",
			want: []Entity{{Kind: KindPhoneNumber, Value: "919876543210"}},
		},
		{
			name: "spaced groups",
			text: "call +1 (415) 555 0134",
			want: []Entity{{Kind: KindPhoneNumber, Value: "14155550134"}},
		},
		{
			name: "too short",
			text: "code is 12345678",
			want: nil,
		},
		{
			name: "too long without prefix",
			text: "card 1234567890123456",
			want: nil,
		},
		{
			name: "decimal amount",
			text: "transfer 1234567890.50 rupees",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scan(tt.text))
		})
	}
}

func TestScan_Idempotent(t *testing.T) {
	text := "pay me@upi, call 9876543210, or visit http://scam.example/a"

	first := Scan(text)
	second := Scan(text)

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestScan_DuplicatesCollapse(t *testing.T) {
	got := Scan("9876543210 9876543210 me@UPI ME@upi")

	require.Len(t, got, 2)
	assert.Equal(t, "me@upi", got[0].Value)
	assert.Equal(t, "9876543210", got[1].Value)
}

func TestScan_Empty(t *testing.T) {
	assert.Nil(t, Scan(""))
	assert.Nil(t, Scan("   \n\t"))
	assert.Nil(t, Scan("hello, how are you today?"))
}

func TestScan_SortedByKindThenValue(t *testing.T) {
	got := Scan("9876543210 and me@upi and http://a.example and b.example")

	require.Len(t, got, 4)
	assert.Equal(t, KindPaymentHandle, got[0].Kind)
	assert.Equal(t, KindPhoneNumber, got[1].Kind)
	assert.Equal(t, Entity{Kind: KindURL, Value: "a.example"}, got[2])
	assert.Equal(t, Entity{Kind: KindURL, Value: "b.example"}, got[3])
}

func TestNormalize_HintValues(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		raw  string
		want string
		ok   bool
	}{
		{"bank account with spaces", KindBankAccount, "1234 5678 9012", "123456789012", true},
		{"bank account too short", KindBankAccount, "1234", "", false},
		{"keyword lowered and squeezed", KindKeyword, "  URGENT   Verification ", "urgent verification", true},
		{"upi id uppercased", KindPaymentHandle, "Victim@OKSBI", "victim@oksbi", true},
		{"emailish handle rejected", KindPaymentHandle, "victim@gmail.com", "", false},
		{"bare link", KindURL, "bit.ly/3xScam", "bit.ly/3xScam", true},
		{"schemed link", KindURL, "https://Fraud.example/Pay/", "fraud.example/Pay", true},
		{"phone with separators", KindPhoneNumber, "+91 98765 43210", "919876543210", true},
		{"phone too short", KindPhoneNumber, "555-0134", "", false},
		{"empty value", KindKeyword, "   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ent, ok := Normalize(tt.kind, tt.raw)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ent.Value)
			}
		})
	}
}
