package intake

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"game-tts/internal/command"
	"game-tts/internal/dispatcher"
	"game-tts/internal/jobs"
	"game-tts/internal/metrics"
	"game-tts/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	jobs   []models.Job
	exits  int
	closed bool
	err    error
}

func (s *recordingSink) Enqueue(jobs ...models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.closed {
		return dispatcher.ErrNotAccepting
	}
	s.jobs = append(s.jobs, jobs...)
	return nil
}

func (s *recordingSink) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exits++
	s.closed = true
}

type recordingMarkers struct {
	markers []string
}

func (m *recordingMarkers) WriteMarker(marker string) error {
	m.markers = append(m.markers, marker)
	return nil
}

type emptyBatch struct{}

func (emptyBatch) ReadBatch(context.Context, string) ([]command.BatchRecord, error) {
	return nil, nil
}

func newTestListener(sink Sink, markers MarkerWriter) *Listener {
	logger := zap.NewNop()
	decoder := command.NewDecoder(emptyBatch{}, 0, logger)
	return NewListener(decoder, jobs.NewFactory(), sink, markers, metrics.New(logger), logger)
}

func TestListener_EnqueuesAndStopsOnExit(t *testing.T) {
	sink := &recordingSink{}
	markers := &recordingMarkers{}
	l := newTestListener(sink, markers)

	input := strings.Join([]string{
		`{"Task":"synth_text","SpeakerID":44,"InputText":"Das ist ein Test.","FileName":"tmp_file_44"}`,
		``,
		`{"Task":"bogus"}`,
		`not json`,
		`{"Task":"synth_setting","Key":"speed","Value":"1.2"}`,
		`{"Task":"SynthText","VoiceID":3,"Text":"Zweiter Satz"}`,
		`{"Task":"exit"}`,
		`{"Task":"synth_text","SpeakerID":1,"InputText":"nach exit"}`,
	}, "\n")

	require.NoError(t, l.Run(context.Background(), strings.NewReader(input)))

	require.Len(t, sink.jobs, 2)
	assert.Equal(t, 44, sink.jobs[0].SpeakerID)
	assert.Equal(t, "Das ist ein Test.", sink.jobs[0].Text)
	assert.True(t, strings.HasPrefix(sink.jobs[0].FileName, "tmp_file_44_44_"))
	assert.Equal(t, 3, sink.jobs[1].SpeakerID)

	assert.Equal(t, 1, sink.exits)
	assert.Empty(t, markers.markers, "маркер отправляется только при закрытии потока")
}

func TestListener_EOFActsAsExit(t *testing.T) {
	sink := &recordingSink{}
	markers := &recordingMarkers{}
	l := newTestListener(sink, markers)

	require.NoError(t, l.Run(context.Background(), strings.NewReader(`{"Task":"synth_text","SpeakerID":1,"InputText":"a"}`)))

	assert.Len(t, sink.jobs, 1)
	assert.Equal(t, 1, sink.exits)
	assert.Equal(t, []string{dispatcher.MarkerRequestsSent}, markers.markers)
}

func TestListener_UnknownCommandEnqueuesNothing(t *testing.T) {
	sink := &recordingSink{}
	l := newTestListener(sink, &recordingMarkers{})

	require.NoError(t, l.Run(context.Background(), strings.NewReader(`{"Task":"bogus"}`+"\n")))
	assert.Empty(t, sink.jobs)
}

func TestListener_CancelledContext(t *testing.T) {
	sink := &recordingSink{}
	l := newTestListener(sink, &recordingMarkers{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, l.Run(ctx, strings.NewReader(`{"Task":"synth_text","SpeakerID":1,"InputText":"a"}`)))
	assert.Empty(t, sink.jobs)
	assert.Equal(t, 1, sink.exits)
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs), s.exits
}

func TestListener_LineTooLongIsSkipped(t *testing.T) {
	sink := &recordingSink{}
	markers := &recordingMarkers{}
	l := newTestListener(sink, markers)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background(), pr) }()

	long := `{"Task":"synth_text","SpeakerID":1,"InputText":"` + strings.Repeat("a", 2*MaxLineSize) + `"}`
	go func() {
		_, _ = io.WriteString(pw, long+"\n")
		_, _ = io.WriteString(pw, `{"Task":"synth_text","SpeakerID":2,"InputText":"next"}`+"\n")
	}()

	assert.Eventually(t, func() bool {
		n, _ := sink.counts()
		return n == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, exits := sink.counts()
	assert.Equal(t, 0, exits, "прием продолжается после длинной строки")

	require.NoError(t, pw.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run не завершился после закрытия потока")
	}

	require.Len(t, sink.jobs, 1)
	assert.Equal(t, 2, sink.jobs[0].SpeakerID)
	assert.Equal(t, "next", sink.jobs[0].Text)
	assert.Equal(t, 1, sink.exits)
	assert.Equal(t, []string{dispatcher.MarkerRequestsSent}, markers.markers)
}

func TestReadLine(t *testing.T) {
	exact := strings.Repeat("b", MaxLineSize)
	over := strings.Repeat("c", MaxLineSize+1)
	r := bufio.NewReaderSize(strings.NewReader(exact+"\n"+over+"\nlast"), 4096)

	line, tooLong, err := readLine(r)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, exact, line)

	line, tooLong, err = readLine(r)
	require.NoError(t, err)
	assert.True(t, tooLong)
	assert.LessOrEqual(t, len(line), 64)

	line, tooLong, err = readLine(r)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, tooLong)
	assert.Equal(t, "last", line)
}

func TestListener_EnqueueFailure(t *testing.T) {
	sinkErr := errors.New("очередь сломана")
	sink := &recordingSink{err: sinkErr}
	l := newTestListener(sink, &recordingMarkers{})

	err := l.Run(context.Background(), strings.NewReader(`{"Task":"synth_text","SpeakerID":1,"InputText":"a"}`))
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 1, sink.exits)
}
