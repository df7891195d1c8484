package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"smartcoop/server/internal/model"
)

type fakeDeviceReader struct {
	devices     map[string]*model.Device
	readings    map[string][]model.Reading
	readingsErr error
}

func (f *fakeDeviceReader) DeviceByID(_ context.Context, deviceID string) (*model.Device, error) {
	return f.devices[deviceID], nil
}

func (f *fakeDeviceReader) RecentReadings(_ context.Context, deviceID string, limit int) ([]model.Reading, error) {
	if f.readingsErr != nil {
		return nil, f.readingsErr
	}
	readings := f.readings[deviceID]
	if len(readings) > limit {
		readings = readings[:limit]
	}
	return readings, nil
}

type fakeScheduleStore struct {
	rows map[string][]string
}

func (f *fakeScheduleStore) UpsertSchedule(_ context.Context, deviceID string, times []string) error {
	if f.rows == nil {
		f.rows = map[string][]string{}
	}
	f.rows[deviceID] = times
	return nil
}

func (f *fakeScheduleStore) ScheduleTimes(_ context.Context, deviceID string) ([]string, error) {
	times, ok := f.rows[deviceID]
	if !ok {
		return []string{}, nil
	}
	return times, nil
}

type publishedMessage struct {
	topic   string
	payload string
}

type fakePublisher struct {
	published []publishedMessage
	err       error
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{topic: topic, payload: string(payload)})
	return nil
}

type recordedMessage struct {
	from string
	body string
}

type fakeInterpreter struct {
	handled []recordedMessage
}

func (f *fakeInterpreter) HandleIncoming(_ context.Context, from, body string) {
	f.handled = append(f.handled, recordedMessage{from: from, body: body})
}

type testEnv struct {
	devices     *fakeDeviceReader
	publisher   *fakePublisher
	interpreter *fakeInterpreter
	server      *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		devices:     &fakeDeviceReader{devices: map[string]*model.Device{}, readings: map[string][]model.Reading{}},
		publisher:   &fakePublisher{},
		interpreter: &fakeInterpreter{},
	}

	h := &handlers{
		devices:     env.devices,
		schedules:   NewScheduleSynchronizer(&fakeScheduleStore{}, env.publisher, logger),
		interpreter: env.interpreter,
		logger:      logger,
	}
	env.server = httptest.NewServer(h.routes())
	t.Cleanup(env.server.Close)
	return env
}

func TestIDRequiringEndpointsRejectMissingID(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/check-device", "/api/sensor-data", "/api/schedule"} {
		resp, err := http.Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s without id: status %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestCheckDevice(t *testing.T) {
	env := newTestEnv(t)
	env.devices.devices["coop-1"] = &model.Device{ID: "coop-1", Name: "Back Coop"}

	resp, err := http.Get(env.server.URL + "/api/check-device?id=coop-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status string       `json:"status"`
		Device model.Device `json:"device"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "success" || body.Device.ID != "coop-1" {
		t.Errorf("unexpected body %+v", body)
	}

	missing, err := http.Get(env.server.URL + "/api/check-device?id=nope")
	if err != nil {
		t.Fatal(err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device: status %d, want 404", missing.StatusCode)
	}
}

func TestSensorDataReturnsEmptyArrayNotError(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/sensor-data?id=missing-device")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("expected empty JSON array, got %q", raw)
	}
}

func TestSensorDataSurfacesStoreFaultsAs500(t *testing.T) {
	env := newTestEnv(t)
	env.devices.readingsErr = errors.New("connection refused")

	resp, err := http.Get(env.server.URL + "/api/sensor-data?id=coop-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status %d, want 500", resp.StatusCode)
	}
}

func TestScheduleRoundTripAndControlPublish(t *testing.T) {
	env := newTestEnv(t)

	post, err := http.Post(env.server.URL+"/api/schedule?id=coop-1", "application/json",
		strings.NewReader(`{"times":["07:00","18:30"]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer post.Body.Close()
	if post.StatusCode != http.StatusOK {
		t.Fatalf("POST status %d, want 200", post.StatusCode)
	}

	var postBody statusResponse
	if err := json.NewDecoder(post.Body).Decode(&postBody); err != nil {
		t.Fatal(err)
	}
	if postBody.Status != "success" {
		t.Errorf("POST body %+v", postBody)
	}

	if len(env.publisher.published) != 1 {
		t.Fatalf("expected one control publish, got %d", len(env.publisher.published))
	}
	published := env.publisher.published[0]
	if published.topic != "devices/coop-1/commands/set_schedule" {
		t.Errorf("published on %q", published.topic)
	}
	if published.payload != `{"times":["07:00","18:30"]}` {
		t.Errorf("published payload %q", published.payload)
	}

	get, err := http.Get(env.server.URL + "/api/schedule?id=coop-1")
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()

	var getBody struct {
		Times []string `json:"times"`
	}
	if err := json.NewDecoder(get.Body).Decode(&getBody); err != nil {
		t.Fatal(err)
	}
	if len(getBody.Times) != 2 || getBody.Times[0] != "07:00" || getBody.Times[1] != "18:30" {
		t.Errorf("GET returned %v", getBody.Times)
	}
}

func TestScheduleGetWithoutRowReturnsEmptyTimes(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/schedule?id=coop-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(raw)) != `{"times":[]}` {
		t.Errorf("expected empty times object, got %q", raw)
	}
}

func TestSchedulePublishFailureDoesNotFailTheRequest(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("broker unreachable")

	resp, err := http.Post(env.server.URL+"/api/schedule?id=coop-1", "application/json",
		strings.NewReader(`{"times":["07:00"]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d, want 200: persisted schedule must not roll back on publish failure", resp.StatusCode)
	}
}

func TestWebhookAcknowledgesAndForwardsToTheInterpreter(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"From": {"whatsapp:+628123"}, "Body": {"cek"}}
	resp, err := http.PostForm(env.server.URL+"/whatsapp-webhook", form)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d, want 200", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) != 0 {
		t.Errorf("expected empty acknowledgment body, got %q", raw)
	}

	if len(env.interpreter.handled) != 1 {
		t.Fatalf("expected one interpreted message, got %d", len(env.interpreter.handled))
	}
	got := env.interpreter.handled[0]
	if got.from != "whatsapp:+628123" || got.body != "cek" {
		t.Errorf("interpreter received %+v", got)
	}
}
