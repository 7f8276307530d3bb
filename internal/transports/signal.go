package transports

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"pulsekeep/internal/models"
)

// signalBudget bounds one delivery attempt, including waiting for the
// JSON-RPC reply. signal-cli can take a while on a cold start.
const signalBudget = 60 * time.Second

// signalTransport talks to a signal-cli daemon over its JSON-RPC socket.
// Requests and replies are newline-delimited JSON.
type signalTransport struct {
	deps   Deps
	nextID atomic.Int64

	// dial is swapped out in tests.
	dial func(ctx context.Context) (net.Conn, error)

	// adminAlert delivers operational alerts (CAPTCHA challenges) to the
	// configured admin address.
	adminAlert func(subject, body string) error
}

func newSignalTransport(deps Deps) *signalTransport {
	t := &signalTransport{deps: deps}
	t.dial = func(ctx context.Context) (net.Conn, error) {
		network, addr, err := parseSocketAddr(deps.Config.Transports.Signal.Socket)
		if err != nil {
			return nil, err
		}
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}
	t.adminAlert = func(subject, body string) error {
		admin := deps.Config.Transports.Signal.AdminEmail
		if admin == "" {
			return nil
		}
		return newEmailTransport(deps).SendRaw(admin, subject, body)
	}
	return t
}

func parseSocketAddr(socket string) (network, addr string, err error) {
	switch {
	case strings.HasPrefix(socket, "unix://"):
		return "unix", strings.TrimPrefix(socket, "unix://"), nil
	case strings.HasPrefix(socket, "tcp://"):
		return "tcp", strings.TrimPrefix(socket, "tcp://"), nil
	}
	return "", "", fmt.Errorf("unsupported signal socket address %q", socket)
}

func (t *signalTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	s := channel.Phone()
	if status == models.StatusDown {
		return !s.NotifyDown
	}
	return !s.NotifyUp
}

type signalRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  signalParams `json:"params"`
	ID      int64        `json:"id"`
}

type signalParams struct {
	Recipient []string `json:"recipient"`
	Message   string   `json:"message"`
}

type signalReply struct {
	ID    *int64 `json:"id"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *signalTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	if !t.deps.Config.Transports.Signal.Enabled() {
		return permanentError("signal delivery is not configured")
	}

	recipient := channel.Phone().Value

	ok, err := t.deps.limiter().Authorize(ctx, "signal", recipient)
	if err != nil {
		return temporaryError("rate limit check failed: %s", err)
	}
	if !ok {
		return temporaryError("rate limit exceeded for this recipient")
	}

	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)
	return t.send(ctx, recipient, mc.Subject()+"\n"+mc.Text())
}

func (t *signalTransport) send(ctx context.Context, recipient, message string) error {
	ctx, cancel := context.WithTimeout(ctx, signalBudget)
	defer cancel()

	conn, err := t.dial(ctx)
	if err != nil {
		return temporaryError("cannot connect to signal-cli: %s", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	reqID := t.nextID.Add(1)
	req := signalRequest{
		JSONRPC: "2.0",
		Method:  "send",
		Params:  signalParams{Recipient: []string{recipient}, Message: message},
		ID:      reqID,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return permanentError("cannot encode signal request: %s", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return temporaryError("cannot write to signal-cli: %s", err)
	}

	return t.readReplies(conn, reqID)
}

// readReplies scans the socket line by line. signal-cli interleaves
// unrelated notifications on the same socket; only the reply matching our
// request id settles the outcome.
func (t *signalTransport) readReplies(conn net.Conn, reqID int64) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var reply signalReply
		if err := json.Unmarshal(scanner.Bytes(), &reply); err != nil {
			continue
		}
		if reply.ID == nil || *reply.ID != reqID {
			continue
		}
		if reply.Error == nil {
			return nil
		}
		msg := reply.Error.Message
		if strings.Contains(msg, "CAPTCHA") {
			// signal-cli is locked out until a human solves the challenge.
			t.adminAlert("signal-cli requires a CAPTCHA",
				"The signal-cli daemon reported: "+msg)
			return temporaryError("signal-cli requires a CAPTCHA challenge")
		}
		if strings.Contains(msg, "UnregisteredUserError") {
			return permanentError("recipient is not a signal user")
		}
		return temporaryError("signal-cli error: %s", msg)
	}
	if err := scanner.Err(); err != nil {
		return temporaryError("error reading from signal-cli: %s", err)
	}
	return temporaryError("signal-cli closed the connection without a reply")
}
