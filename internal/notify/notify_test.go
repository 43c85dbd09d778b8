package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInbox_KeepsMostRecent(t *testing.T) {
	inbox := NewInbox(3)
	for i := 1; i <= 5; i++ {
		inbox.Notify(context.Background(), SeverityInfo, fmt.Sprintf("msg %d", i))
	}

	got := inbox.List()
	if len(got) != 3 {
		t.Fatalf("Expected 3 notifications, got %d", len(got))
	}
	for i, n := range got {
		want := fmt.Sprintf("msg %d", i+3)
		if n.Message != want {
			t.Errorf("Expected %q at %d, got %q", want, i, n.Message)
		}
		if n.ID == "" {
			t.Error("Expected notification id")
		}
	}
}

func TestInbox_ListReturnsCopy(t *testing.T) {
	inbox := NewInbox(0)
	inbox.Notify(context.Background(), SeveritySuccess, "done")

	list := inbox.List()
	list[0].Message = "changed"
	if inbox.List()[0].Message != "done" {
		t.Error("Expected List to return a copy")
	}
}

func TestLogNotifier_LevelsBySeverity(t *testing.T) {
	tests := []struct {
		severity Severity
		level    string
	}{
		{SeverityInfo, "info"},
		{SeveritySuccess, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			var buf bytes.Buffer
			log := logrus.New()
			log.SetOutput(&buf)
			log.SetFormatter(&logrus.JSONFormatter{})

			NewLogNotifier(log).Notify(context.Background(), tt.severity, "hello")

			out := buf.String()
			if !strings.Contains(out, `"level":"`+tt.level+`"`) {
				t.Errorf("Expected level %s in %s", tt.level, out)
			}
			if !strings.Contains(out, `"severity":"`+string(tt.severity)+`"`) {
				t.Errorf("Expected severity field in %s", out)
			}
		})
	}
}

func TestMulti_FansOut(t *testing.T) {
	a, b := NewInbox(5), NewInbox(5)
	Multi{a, b}.Notify(context.Background(), SeverityError, "failed")

	if len(a.List()) != 1 || len(b.List()) != 1 {
		t.Errorf("Expected both inboxes to receive the notification")
	}
}
