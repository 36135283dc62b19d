package notify_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/notify"
)

var noticeTime = time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)

func newHub(opts notify.Options) (*notify.Hub, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	opts.Clock = generic.FixedClock{T: noticeTime}
	return notify.NewHub(zap.New(core), opts), logs
}

func TestHub_HistoryIsImmediate(t *testing.T) {
	hub, _ := newHub(notify.Options{})
	hub.Start()
	defer hub.Close()

	hub.Notify(context.Background(), generic.Notice{Kind: generic.NoticeSuccess, Topic: "s1", Message: "done"})

	recent := hub.Recent("s1")
	require.Len(t, recent, 1)
	assert.Equal(t, "done", recent[0].Message)
	assert.Equal(t, noticeTime, recent[0].At)
	assert.Empty(t, hub.Recent("other"))
}

func TestHub_HistoryIsBounded(t *testing.T) {
	hub, _ := newHub(notify.Options{HistoryPerTopic: 3})
	defer hub.Close()

	for i := 0; i < 5; i++ {
		hub.Notify(context.Background(), generic.Notice{Topic: "s1", Message: fmt.Sprint(i)})
	}

	recent := hub.Recent("s1")
	require.Len(t, recent, 3)
	assert.Equal(t, "2", recent[0].Message)
	assert.Equal(t, "4", recent[2].Message)

	hub.Forget("s1")
	assert.Empty(t, hub.Recent("s1"))
}

func TestHub_CloseFlushesLogs(t *testing.T) {
	hub, logs := newHub(notify.Options{})
	hub.Start()

	hub.Notify(context.Background(), generic.Notice{Kind: generic.NoticeAlert, Topic: "s1", Message: "short"})
	hub.Notify(context.Background(), generic.Notice{Kind: generic.NoticeInfo, Topic: "s1", Message: "fyi"})
	hub.Close()

	entries := logs.FilterMessage("notice").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, zap.InfoLevel, entries[1].Level)

	// After close, notices are ignored.
	hub.Notify(context.Background(), generic.Notice{Topic: "s1", Message: "late"})
	assert.Len(t, hub.Recent("s1"), 2)
}

func TestHub_Subscribe(t *testing.T) {
	hub, _ := newHub(notify.Options{})
	hub.Start()
	defer hub.Close()

	ch, cancel := hub.Subscribe("s1", 4)
	defer cancel()

	hub.Notify(context.Background(), generic.Notice{Topic: "s2", Message: "elsewhere"})
	hub.Notify(context.Background(), generic.Notice{Topic: "s1", Message: "mine"})

	select {
	case rec := <-ch:
		assert.Equal(t, "mine", rec.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no notice delivered")
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub, _ := newHub(notify.Options{})
	hub.Start()

	ch, cancel := hub.Subscribe("s1", 1)
	hub.Close()

	_, open := <-ch
	assert.False(t, open)
	cancel()
}
