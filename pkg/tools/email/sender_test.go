package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"synapse/pkg/config"
	"synapse/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeTransport struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeTransport) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	f.sent = append(f.sent, messages...)
	return f.err
}

func TestSend(t *testing.T) {
	tr := &fakeTransport{}
	s := &Sender{From: "hr@synapse.example", Transport: tr}

	d, err := s.Send(context.Background(), tools.Email{
		To:      "jane@example.com",
		Subject: "Offer of Employment",
		HTML:    "<html><head><title>x</title></head><body><p>Dear Jane,</p><p>Welcome &amp; congrats</p></body></html>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Email successfully sent to jane@example.com.", d.Message)
	assert.NotEmpty(t, d.MessageID)

	require.Len(t, tr.sent, 1)
	msg := tr.sent[0]
	assert.Equal(t, []string{`"Synapse Agent" <hr@synapse.example>`}, msg.GetFromString())
	assert.Equal(t, []string{"<jane@example.com>"}, msg.GetToString())

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "text/html")
}

func TestSend_Failures(t *testing.T) {
	ok := tools.Email{To: "a@b.co", Subject: "s", HTML: "<p>x</p>"}

	_, err := (&Sender{From: "x@y.z", Transport: &fakeTransport{}}).Send(context.Background(), tools.Email{To: "a@b.co"})
	assert.ErrorIs(t, err, tools.ErrMissingInput)

	_, err = New(config.EmailConfig{}).Send(context.Background(), ok)
	assert.ErrorIs(t, err, tools.ErrDeliveryFailed)

	_, err = (&Sender{From: "x@y.z", Transport: &fakeTransport{err: errors.New("535 auth failed")}}).Send(context.Background(), ok)
	assert.ErrorIs(t, err, tools.ErrDeliveryFailed)

	_, err = (&Sender{From: "x@y.z", Transport: &fakeTransport{}}).Send(context.Background(), tools.Email{To: "not an address", Subject: "s", HTML: "h"})
	assert.ErrorIs(t, err, tools.ErrDeliveryFailed)
}

func TestNew_Configured(t *testing.T) {
	s := New(config.EmailConfig{Host: "smtp.example.com", Port: 587, Username: "u@example.com", Password: "p"})
	assert.True(t, s.Configured())
	assert.False(t, New(config.EmailConfig{Host: "smtp.example.com"}).Configured())
}

func TestPlainText(t *testing.T) {
	in := "<html><head><style>p{}</style></head><body><h1>Offer</h1><p>Dear Jane,<br>Salary: $95,000</p>\n\n\n\n<p>Thanks &amp; regards</p></body></html>"
	assert.Equal(t, "Offer\nDear Jane,\nSalary: $95,000\n\nThanks & regards", PlainText(in))
}
