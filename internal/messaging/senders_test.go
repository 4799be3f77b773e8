package messaging

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestDesktopSenderMissingBinary(t *testing.T) {
	origLook := lookPathFunc
	defer func() { lookPathFunc = origLook }()
	lookPathFunc = func(string) (string, error) { return "", exec.ErrNotFound }

	s := NewDesktopSender()
	if s.Available() {
		t.Error("sender should report unavailable without notify-send")
	}
	if err := s.Send(context.Background(), "t", "b"); !errors.Is(err, ErrNotifySendMissing) {
		t.Errorf("expected ErrNotifySendMissing, got %v", err)
	}
}

func TestDesktopSenderArgs(t *testing.T) {
	origLook, origRun := lookPathFunc, runCmdFunc
	defer func() { lookPathFunc, runCmdFunc = origLook, origRun }()

	var gotName string
	var gotArgs []string
	lookPathFunc = func(string) (string, error) { return "/usr/bin/notify-send", nil }
	runCmdFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}

	if err := NewDesktopSender().Send(context.Background(), "FlowMotion: Start Now", "It is time for Yoga."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotName != "/usr/bin/notify-send" {
		t.Errorf("unexpected binary %q", gotName)
	}
	want := "-a FlowMotion -i appointment-new -u normal FlowMotion: Start Now It is time for Yoga."
	if got := strings.Join(gotArgs, " "); got != want {
		t.Errorf("unexpected args\n got: %s\nwant: %s", got, want)
	}
}

func TestDesktopSenderCommandFailure(t *testing.T) {
	origLook, origRun := lookPathFunc, runCmdFunc
	defer func() { lookPathFunc, runCmdFunc = origLook, origRun }()
	lookPathFunc = func(string) (string, error) { return "/usr/bin/notify-send", nil }
	runCmdFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("cannot open display"), errors.New("exit status 1")
	}

	err := NewDesktopSender().Send(context.Background(), "t", "b")
	if err == nil || !strings.Contains(err.Error(), "cannot open display") {
		t.Errorf("expected command output in error, got %v", err)
	}
}

type fakeMessageCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioSenderSMS(t *testing.T) {
	api := &fakeMessageCreator{}
	s := newTwilioSender(api, "+15550000000", "15551234567", false)

	if err := s.Send(context.Background(), "FlowMotion: Prep Time", "Ready?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *api.params.To != "+15551234567" || *api.params.From != "+15550000000" {
		t.Errorf("unexpected addressing to=%s from=%s", *api.params.To, *api.params.From)
	}
	if *api.params.Body != "FlowMotion: Prep Time\nReady?" {
		t.Errorf("unexpected body %q", *api.params.Body)
	}
}

func TestTwilioSenderWhatsApp(t *testing.T) {
	api := &fakeMessageCreator{}
	s := newTwilioSender(api, "+15550000000", "15551234567", true)

	if err := s.Send(context.Background(), "t", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *api.params.To != "whatsapp:+15551234567" || *api.params.From != "whatsapp:+15550000000" {
		t.Errorf("unexpected addressing to=%s from=%s", *api.params.To, *api.params.From)
	}
}

func TestTwilioSenderError(t *testing.T) {
	boom := errors.New("rate limited")
	s := newTwilioSender(&fakeMessageCreator{err: boom}, "+1555", "15551234567", false)
	if err := s.Send(context.Background(), "t", "b"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestNewTwilioSenderValidation(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewTwilioSender(WithTwilioTo("+15551234567")); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewTwilioSender(WithTwilioAccountSID("AC1"), WithTwilioAuthToken("tok"), WithTwilioTo("+15551234567")); err == nil {
		t.Error("expected error without a from number")
	}
	_, err := NewTwilioSender(WithTwilioAccountSID("AC1"), WithTwilioAuthToken("tok"), WithTwilioFrom("+15550000000"))
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("expected ErrInvalidRecipient without a recipient, got %v", err)
	}
	if _, err := NewTwilioSender(WithTwilioAccountSID("AC1"), WithTwilioAuthToken("tok"), WithTwilioFrom("+15550000000"), WithTwilioTo("+15551234567")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegramSender(t *testing.T) {
	bot := &fakeBot{}
	s := &TelegramSender{api: bot, chatID: 42}

	if err := s.Send(context.Background(), "FlowMotion: Don't Forget", "Your <Yoga> is waiting"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != 42 || msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("unexpected message config %+v", msg)
	}
	want := "<b>FlowMotion: Don&#39;t Forget</b>\nYour &lt;Yoga&gt; is waiting"
	if msg.Text != want {
		t.Errorf("unexpected text\n got: %s\nwant: %s", msg.Text, want)
	}
}

func TestTelegramSenderValidation(t *testing.T) {
	if _, err := NewTelegramSender("", 1); err == nil {
		t.Error("expected error without token")
	}
	if _, err := NewTelegramSender("token", 0); err == nil {
		t.Error("expected error without chat id")
	}
}

type fakeWhatsApp struct {
	to, body string
}

func (f *fakeWhatsApp) SendMessage(ctx context.Context, to, body string) error {
	f.to, f.body = to, body
	return nil
}

func TestWhatsAppSender(t *testing.T) {
	wa := &fakeWhatsApp{}
	s, err := NewWhatsAppSender(wa, "+1 555 123 4567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Send(context.Background(), "Title", "Body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wa.to != "15551234567" || wa.body != "Title\nBody" {
		t.Errorf("unexpected delivery to=%q body=%q", wa.to, wa.body)
	}
	if _, err := NewWhatsAppSender(wa, "n/a"); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("expected ErrInvalidRecipient, got %v", err)
	}
}
