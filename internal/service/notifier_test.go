package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	pkglogger "github.com/angple/kb-engine/pkg/logger"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, n AssignmentNotice) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func TestDispatcher_Delivers(t *testing.T) {
	sender := &mockSender{}
	first := AssignmentNotice{TenantID: 1, ArticleID: 2, Reference: "KB-0002", AssigneeID: 5, AssignerID: 1}
	second := AssignmentNotice{TenantID: 1, ArticleID: 3, Reference: "KB-0003", AssigneeID: 6, AssignerID: 1}
	sender.On("Send", mock.Anything, first).Return(nil).Once()
	sender.On("Send", mock.Anything, second).Return(errors.New("smtp down")).Once()

	d := NewDispatcher(sender, 4)
	d.Start()
	d.Notify(first)
	d.Notify(second)
	d.Stop()

	sender.AssertExpectations(t)
}

func TestDispatcher_FullQueueDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	d := NewDispatcher(sender, 1)
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 10; i++ {
			d.Notify(AssignmentNotice{TenantID: 1, ArticleID: i, AssigneeID: 2})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	close(release)
	d.Stop()

	// one in flight plus one queued; the rest were dropped
	assert.LessOrEqual(t, len(sender.Calls), 2)
}

func TestDispatcher_NotifyAfterStop(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(sender, 1)
	d.Start()
	d.Stop()

	assert.NotPanics(t, func() { d.Notify(AssignmentNotice{TenantID: 1, ArticleID: 1}) })
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	pkglogger.SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { pkglogger.SetLogger(zerolog.Nop()) })

	err := LogSender{}.Send(context.Background(), AssignmentNotice{TenantID: 1, ArticleID: 7, Reference: "KB-0001", AssigneeID: 3})
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"reference":"KB-0001"`)
	assert.Contains(t, out, `"article_id":7`)
	assert.Contains(t, out, `"assignee_id":3`)
}
