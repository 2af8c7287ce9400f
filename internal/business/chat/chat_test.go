package chat

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/backend"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
)

type fakeAnalyzer struct {
	mu        sync.Mutex
	calls     []string
	sessions  []string
	image     func() (model.ImageCheck, error)
	location  func(lat, lng float64) (model.LocationCheck, error)
	followUp  func() (model.FollowUpAnswer, error)
	locations []model.Coordinate
}

func (f *fakeAnalyzer) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAnalyzer) CheckParkingImage(ctx context.Context, filename, contentType string, image []byte, at time.Time) (model.ImageCheck, error) {
	f.record("image")
	if f.image == nil {
		return model.ImageCheck{}, nil
	}
	return f.image()
}

func (f *fakeAnalyzer) CheckParkingLocation(ctx context.Context, lat, lng float64, at time.Time) (model.LocationCheck, error) {
	f.record("location")
	f.mu.Lock()
	f.locations = append(f.locations, model.Coordinate{Lat: lat, Lng: lng})
	f.mu.Unlock()
	if f.location == nil {
		return model.LocationCheck{CanPark: true, Message: "Parking allowed"}, nil
	}
	return f.location(lat, lng)
}

func (f *fakeAnalyzer) FollowUpQuestion(ctx context.Context, sessionID, question string) (model.FollowUpAnswer, error) {
	f.record("followup")
	f.mu.Lock()
	f.sessions = append(f.sessions, sessionID)
	f.mu.Unlock()
	if f.followUp == nil {
		return model.FollowUpAnswer{Answer: "Until 6pm."}, nil
	}
	return f.followUp()
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStats struct {
	mu    sync.Mutex
	stats []model.StatName
}

func (f *fakeStats) IncrementUserStat(ctx context.Context, userID string, stat model.StatName) error {
	f.mu.Lock()
	f.stats = append(f.stats, stat)
	f.mu.Unlock()
	return nil
}

func jpegPhoto(t *testing.T, w, h int) Photo {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return Photo{Filename: "sign.jpg", ContentType: "image/jpeg", Data: buf.Bytes()}
}

func newTestSession(a *fakeAnalyzer, st *fakeStats) (*Service, *Session) {
	var recorder StatRecorder
	if st != nil {
		recorder = st
	}
	svc := NewService(a, recorder, Options{})
	return svc, svc.Create("user_1")
}

func TestPhotoScenarioBindsSessionForFollowUp(t *testing.T) {
	a := &fakeAnalyzer{image: func() (model.ImageCheck, error) {
		return model.ImageCheck{SessionID: "abc", CanPark: "false", Reason: "No parking 8am-6pm"}, nil
	}}
	st := &fakeStats{}
	_, sess := newTestSession(a, st)

	if !sess.SubmitPhoto(context.Background(), jpegPhoto(t, 64, 48)) {
		t.Fatalf("photo rejected")
	}
	snap := sess.Snapshot()
	if len(snap.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(snap.Messages))
	}
	parking := 0
	for _, m := range snap.Messages {
		if m.Kind == model.KindParking {
			parking++
			if m.Text != "No parking 8am-6pm" {
				t.Fatalf("parking text = %q", m.Text)
			}
		}
	}
	if parking != 1 {
		t.Fatalf("parking messages = %d", parking)
	}
	if snap.SessionID != "abc" || !snap.HasSession || snap.State != StateIdle || snap.Pending != "" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(st.stats) != 1 || st.stats[0] != model.StatSignsAnalyzed {
		t.Fatalf("stats = %v", st.stats)
	}

	if !sess.AskFollowUp(context.Background(), "  until when?  ") {
		t.Fatalf("follow-up rejected")
	}
	if len(a.sessions) != 1 || a.sessions[0] != "abc" {
		t.Fatalf("follow-up session ids = %v", a.sessions)
	}
	last := sess.Snapshot().Messages
	if got := last[len(last)-1]; got.Kind != model.KindFollowUp || got.Text != "Until 6pm." {
		t.Fatalf("last message = %+v", got)
	}
}

func TestPhotoResultKindAndText(t *testing.T) {
	tests := []struct {
		name     string
		res      model.ImageCheck
		wantKind model.MessageKind
		wantText string
	}{
		{name: "answer wins", res: model.ImageCheck{Answer: "a", Message: "m", Reason: "r"}, wantKind: model.KindParking, wantText: "a"},
		{name: "message next", res: model.ImageCheck{Message: "m", Reason: "r", MessageType: "bot"}, wantKind: model.KindBot, wantText: "m"},
		{name: "default text", res: model.ImageCheck{MessageType: "nonsense"}, wantKind: model.KindParking, wantText: DefaultResultText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := imageResultMessage(tt.res, time.Now())
			if msg.Kind != tt.wantKind || msg.Text != tt.wantText {
				t.Fatalf("got %s %q", msg.Kind, msg.Text)
			}
		})
	}
}

func TestPhotoFailureCarriesPreviewAndDoesNotBind(t *testing.T) {
	a := &fakeAnalyzer{image: func() (model.ImageCheck, error) {
		return model.ImageCheck{}, &backend.APIError{StatusCode: 503, Body: "down"}
	}}
	st := &fakeStats{}
	_, sess := newTestSession(a, st)

	sess.SubmitPhoto(context.Background(), jpegPhoto(t, 32, 32))
	snap := sess.Snapshot()
	if len(snap.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(snap.Messages))
	}
	errMsg := snap.Messages[2]
	if errMsg.Kind != model.KindError || errMsg.Data == nil || !strings.HasPrefix(errMsg.Data.ImageData, "data:image/") {
		t.Fatalf("error message = %+v", errMsg)
	}
	if errMsg.Data.Error != backend.MsgUnavailable {
		t.Fatalf("error text = %q", errMsg.Data.Error)
	}
	if snap.HasSession || len(st.stats) != 0 {
		t.Fatalf("failure should not bind a session or record stats: %+v %v", snap, st.stats)
	}
}

func TestInvalidPhotoIsNoOp(t *testing.T) {
	a := &fakeAnalyzer{}
	_, sess := newTestSession(a, nil)
	for _, p := range []Photo{{}, {ContentType: "text/plain", Data: []byte("hello world")}} {
		if sess.SubmitPhoto(context.Background(), p) {
			t.Fatalf("expected %+v to be rejected", p)
		}
	}
	if len(sess.Snapshot().Messages) != 1 || a.callCount() != 0 {
		t.Fatalf("rejected uploads must not change state or call the backend")
	}
}

func TestFollowUpWithoutSessionIsNoOp(t *testing.T) {
	a := &fakeAnalyzer{}
	_, sess := newTestSession(a, nil)
	for _, q := range []string{"until when?", "can I park on Sunday?", "   "} {
		if sess.AskFollowUp(context.Background(), q) {
			t.Fatalf("follow-up %q accepted without session", q)
		}
	}
	if len(sess.Snapshot().Messages) != 1 || a.callCount() != 0 {
		t.Fatalf("follow-up without session changed state")
	}
}

func TestFollowUpErrorUsesFormattedText(t *testing.T) {
	a := &fakeAnalyzer{
		image: func() (model.ImageCheck, error) { return model.ImageCheck{SessionID: "s1"}, nil },
		followUp: func() (model.FollowUpAnswer, error) {
			return model.FollowUpAnswer{}, &backend.APIError{StatusCode: 400}
		},
	}
	_, sess := newTestSession(a, nil)
	sess.SubmitPhoto(context.Background(), jpegPhoto(t, 16, 16))
	sess.AskFollowUp(context.Background(), "why?")
	msgs := sess.Snapshot().Messages
	last := msgs[len(msgs)-1]
	if last.Kind != model.KindError || last.Text != "❌ "+backend.MsgInvalidInput {
		t.Fatalf("last = %+v", last)
	}
}

func TestLocationDeniedUsesFallback(t *testing.T) {
	a := &fakeAnalyzer{}
	st := &fakeStats{}
	_, sess := newTestSession(a, st)

	sess.RequestLocation(context.Background(), LocationFix{Supported: true, Denied: true})
	msgs := sess.Snapshot().Messages
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	user := msgs[1]
	if user.Kind != model.KindUser || !user.Data.Fallback || *user.Data.Coordinate != FallbackCoordinate {
		t.Fatalf("fallback message = %+v", user)
	}
	if !strings.Contains(user.Text, "47.669253") {
		t.Fatalf("fallback text = %q", user.Text)
	}
	if a.locations[0] != FallbackCoordinate {
		t.Fatalf("location call used %+v", a.locations[0])
	}
	if msgs[2].Kind != model.KindParking || len(st.stats) != 1 || st.stats[0] != model.StatLocationsSearched {
		t.Fatalf("result = %+v stats = %v", msgs[2], st.stats)
	}
}

func TestLocationUnsupportedSkipsBackend(t *testing.T) {
	a := &fakeAnalyzer{}
	_, sess := newTestSession(a, nil)
	sess.RequestLocation(context.Background(), LocationFix{})
	msgs := sess.Snapshot().Messages
	if len(msgs) != 2 || msgs[1].Text != NoGeolocationText || a.callCount() != 0 {
		t.Fatalf("messages = %+v calls = %d", msgs, a.callCount())
	}
}

func TestMessageCountsAcrossOperations(t *testing.T) {
	fail := false
	a := &fakeAnalyzer{
		image: func() (model.ImageCheck, error) {
			if fail {
				return model.ImageCheck{}, errors.New("timeout")
			}
			return model.ImageCheck{SessionID: "s", Reason: "ok"}, nil
		},
		location: func(lat, lng float64) (model.LocationCheck, error) {
			if fail {
				return model.LocationCheck{}, errors.New("timeout")
			}
			return model.LocationCheck{Message: "ok"}, nil
		},
	}
	_, sess := newTestSession(a, nil)
	ctx := context.Background()

	want := 1
	for i := 0; i < 6; i++ {
		fail = i%2 == 1
		if sess.SubmitPhoto(ctx, jpegPhoto(t, 8, 8)) {
			want += 2
		}
		if sess.RequestLocation(ctx, LocationFix{Supported: true, Lat: 47.6, Lng: -122.3}) {
			want += 2
		}
		if sess.AskFollowUp(ctx, "and tomorrow?") {
			want += 2
		}
		if got := len(sess.Snapshot().Messages); got != want {
			t.Fatalf("round %d: messages = %d, want %d", i, got, want)
		}
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	a := &fakeAnalyzer{location: func(lat, lng float64) (model.LocationCheck, error) {
		if lat == 1 {
			once.Do(func() { close(started) })
			<-release
			return model.LocationCheck{Message: "stale"}, nil
		}
		return model.LocationCheck{Message: "fresh"}, nil
	}}
	_, sess := newTestSession(a, nil)

	done := make(chan struct{})
	go func() {
		sess.RequestLocation(context.Background(), LocationFix{Supported: true, Lat: 1, Lng: 1})
		close(done)
	}()
	<-started
	sess.RequestLocation(context.Background(), LocationFix{Supported: true, Lat: 2, Lng: 2})
	close(release)
	<-done

	snap := sess.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("state = %s", snap.State)
	}
	var results []string
	for _, m := range snap.Messages {
		if m.Kind == model.KindParking {
			results = append(results, m.Text)
		}
	}
	if len(results) != 1 || results[0] != "fresh" {
		t.Fatalf("applied results = %v", results)
	}
}

func TestMountBackfillsCreatedAtOnce(t *testing.T) {
	svc, sess := newTestSession(&fakeAnalyzer{}, nil)
	first := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }
	sess.now = svc.now

	if sess.Snapshot().Messages[0].CreatedAt != nil {
		t.Fatalf("welcome message should start without createdAt")
	}
	snap := sess.Mount()
	if got := snap.Messages[0].CreatedAt; got == nil || !got.Equal(first) {
		t.Fatalf("createdAt = %v", got)
	}
	sess.now = func() time.Time { return first.Add(time.Hour) }
	if got := sess.Mount().Messages[0].CreatedAt; !got.Equal(first) {
		t.Fatalf("second mount changed createdAt to %v", got)
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	svc := NewService(&fakeAnalyzer{}, nil, Options{TTL: time.Minute})
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	old := svc.Create("")
	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	fresh := svc.Create("")

	if n := svc.Sweep(); n != 1 {
		t.Fatalf("removed = %d", n)
	}
	if _, err := svc.Get(old.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("old session still present: %v", err)
	}
	if _, err := svc.Get(fresh.ID()); err != nil {
		t.Fatalf("fresh session evicted: %v", err)
	}
}

func TestPrepareImageDownscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3000, 1000))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := PrepareImage(Photo{Filename: "big.png", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("PrepareImage: %v", err)
	}
	if out.Err != nil || out.ContentType != "image/jpeg" || out.Filename != "big.jpg" {
		t.Fatalf("prepared = %+v", out)
	}
	if out.Dimensions.Width != 1920 || out.Dimensions.Height != 640 {
		t.Fatalf("dimensions = %+v", out.Dimensions)
	}
	if !strings.HasPrefix(out.Preview, "data:image/jpeg;base64,") {
		t.Fatalf("preview prefix = %q", out.Preview[:30])
	}
}

func TestPrepareImageFallsBackOnUndecodable(t *testing.T) {
	data := []byte("\x89PNG\r\n\x1a\n-truncated")
	out, err := PrepareImage(Photo{ContentType: "image/png", Data: data})
	if err != nil {
		t.Fatalf("PrepareImage: %v", err)
	}
	if out.Err == nil || !bytes.Equal(out.Data, data) || out.CompressionRatio != 0 || out.CompressedSize != out.OriginalSize {
		t.Fatalf("fallback = %+v", out)
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct{ w, h, ww, wh int }{
		{w: 800, h: 600, ww: 800, wh: 600},
		{w: 4000, h: 3000, ww: 1920, wh: 1440},
		{w: 1000, h: 5000, ww: 384, wh: 1920},
	}
	for _, tt := range tests {
		if w, h := fitWithin(tt.w, tt.h, 1920); w != tt.ww || h != tt.wh {
			t.Errorf("fitWithin(%d, %d) = %d, %d", tt.w, tt.h, w, h)
		}
	}
}
