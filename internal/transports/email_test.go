package transports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mail "gopkg.in/mail.v2"

	"pulsekeep/internal/models"
)

func TestEmailNotify(t *testing.T) {
	deps := testDeps(nil)
	deps.Config.Transports.Email.Host = "smtp.example.org"
	deps.Config.Transports.Email.From = "alerts@example.org"

	tr := newEmailTransport(deps)
	var sent *mail.Message
	tr.send = func(m *mail.Message) error {
		sent = m
		return nil
	}

	err := tr.Notify(context.Background(), downFlip("c1"), testCheck(),
		&models.Channel{Kind: models.KindEmail, Value: "ops@example.org"})
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, []string{"ops@example.org"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"alerts@example.org"}, sent.GetHeader("From"))
	assert.Equal(t, []string{"Nightly backup is DOWN"}, sent.GetHeader("Subject"))
}

func TestEmailSMTPFailureIsTemporary(t *testing.T) {
	deps := testDeps(nil)
	deps.Config.Transports.Email.Host = "smtp.example.org"

	tr := newEmailTransport(deps)
	tr.send = func(m *mail.Message) error {
		return assert.AnError
	}

	err := tr.Notify(context.Background(), downFlip("c1"), testCheck(),
		&models.Channel{Kind: models.KindEmail, Value: "ops@example.org"})

	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestEmailUnconfigured(t *testing.T) {
	tr := newEmailTransport(testDeps(nil))

	err := tr.Notify(context.Background(), downFlip("c1"), testCheck(),
		&models.Channel{Kind: models.KindEmail, Value: "ops@example.org"})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestEmailNoopDirections(t *testing.T) {
	tr := &emailTransport{}

	downOnly := &models.Channel{Kind: models.KindEmail, Value: `{"value":"ops@example.org","down":true,"up":false}`}
	assert.False(t, tr.IsNoop(downOnly, models.StatusDown))
	assert.True(t, tr.IsNoop(downOnly, models.StatusUp))

	legacy := &models.Channel{Kind: models.KindEmail, Value: "ops@example.org"}
	assert.False(t, tr.IsNoop(legacy, models.StatusDown))
	assert.False(t, tr.IsNoop(legacy, models.StatusUp))
}
