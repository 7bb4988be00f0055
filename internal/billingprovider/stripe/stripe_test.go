package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/OnnaSoft/real-sync/internal/billingprovider/domain"
	"github.com/OnnaSoft/real-sync/internal/config"
	"go.uber.org/zap"
)

func TestParseWebhookVerifiesSignature(t *testing.T) {
	secret := "whsec_test"
	gateway := New(config.StripeConfig{WebhookSecret: secret}, zap.NewNop())

	created := time.Now().UTC().Unix()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_123",
		"object":      "event",
		"type":        "customer.subscription.updated",
		"created":     created,
		"api_version": "2020-08-27",
		"data": map[string]any{
			"object": map[string]any{
				"id":     "sub_1",
				"object": "subscription",
				"status": "past_due",
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	event, err := gateway.ParseWebhook(payload, buildStripeSignatureHeader(secret, payload, time.Now().Unix()))
	if err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}
	if event.ID != "evt_123" {
		t.Fatalf("expected event id evt_123, got %s", event.ID)
	}
	if event.Type != "customer.subscription.updated" {
		t.Fatalf("unexpected type %s", event.Type)
	}
	if event.Created.Unix() != created {
		t.Fatalf("expected created %d, got %d", created, event.Created.Unix())
	}

	var object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(event.Data, &object); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if object.ID != "sub_1" || object.Status != "past_due" {
		t.Fatalf("unexpected object %+v", object)
	}

	_, err = gateway.ParseWebhook(payload, buildStripeSignatureHeader("wrong", payload, time.Now().Unix()))
	if err != domain.ErrInvalidSignature {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	_, err = gateway.ParseWebhook(payload, "")
	if err != domain.ErrInvalidSignature {
		t.Fatalf("expected invalid signature for missing header, got %v", err)
	}
}

func TestParseWebhookRejectsStaleTimestamp(t *testing.T) {
	secret := "whsec_test"
	gateway := New(config.StripeConfig{WebhookSecret: secret}, zap.NewNop())
	payload := []byte(`{"id":"evt_old","object":"event","type":"invoice.payment_succeeded","data":{"object":{}}}`)

	stale := time.Now().Add(-time.Hour).Unix()
	if _, err := gateway.ParseWebhook(payload, buildStripeSignatureHeader(secret, payload, stale)); err != domain.ErrInvalidSignature {
		t.Fatalf("expected stale signature to be rejected, got %v", err)
	}
}

func TestGatewayWithoutCredentials(t *testing.T) {
	gateway := New(config.StripeConfig{}, zap.NewNop())
	ctx := context.Background()

	if _, err := gateway.ParseWebhook([]byte(`{}`), "t=1,v1=00"); err != domain.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := gateway.CreateCustomer(ctx, domain.CreateCustomerInput{Email: "a@example.com"}); err != domain.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := gateway.ReportUsage(ctx, domain.UsageReport{Quantity: 1}); err != domain.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := gateway.CancelSubscription(ctx, "sub_1"); err != domain.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
