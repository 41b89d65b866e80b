// sensorwatch-stream posts a simulated station feed at the prediction
// endpoint: mostly normal random-walk readings, with occasional injected
// spikes so the anomaly path gets exercised end to end.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"math/rand"
	"net/http"
	"time"

	"sensorwatch/internal/logging"
	"sensorwatch/internal/schema"
	"sensorwatch/internal/simulate"
)

const anomalyProb = 0.03

func main() {
	var (
		url      = flag.String("url", "http://localhost:8080/predict", "prediction endpoint")
		station  = flag.String("station", "station_001", "station id to report as")
		interval = flag.Duration("interval", time.Second, "delay between events")
		count    = flag.Int("count", 0, "events to send; 0 streams forever")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	)
	flag.Parse()

	walk := simulate.NewWalk(*seed)
	rng := rand.New(rand.NewSource(*seed + 1))
	client := &http.Client{Timeout: 10 * time.Second}

	logging.Infof("streaming to %s as %s (interval %s)", *url, *station, *interval)
	for seq := int64(0); *count == 0 || seq < int64(*count); seq++ {
		r := walk.Next()
		kind := ""
		if rng.Float64() < anomalyProb {
			kind = injectSpike(rng, &r)
		}

		ev := schema.SensorEvent{
			Timestamp:    time.Now().UTC(),
			Sequence:     seq,
			StationID:    *station,
			TemperatureC: r.TemperatureC,
			HumidityPct:  r.HumidityPct,
			SoundDB:      r.SoundDB,
		}
		post(client, *url, ev, kind)
		time.Sleep(*interval)
	}
}

// injectSpike pushes one or all channels well outside the walk's usual band
// and names the spike for the log line.
func injectSpike(rng *rand.Rand, r *simulate.Reading) string {
	switch rng.Intn(4) {
	case 0:
		r.TemperatureC += 8 + rng.Float64()*10
		return "temp_spike"
	case 1:
		r.HumidityPct += 12 + rng.Float64()*13
		if r.HumidityPct > 100 {
			r.HumidityPct = 100
		}
		return "hum_spike"
	case 2:
		r.SoundDB += 8 + rng.Float64()*12
		return "sound_spike"
	default:
		r.TemperatureC += 6 + rng.Float64()*8
		r.HumidityPct += 8 + rng.Float64()*10
		if r.HumidityPct > 100 {
			r.HumidityPct = 100
		}
		r.SoundDB += 6 + rng.Float64()*8
		return "multi_spike"
	}
}

func post(client *http.Client, url string, ev schema.SensorEvent, kind string) {
	body, err := json.Marshal(ev)
	if err != nil {
		logging.Errorf("encode event %d: %v", ev.Sequence, err)
		return
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logging.Errorf("post event %d: %v", ev.Sequence, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logging.Errorf("event %d rejected: %s %s", ev.Sequence, resp.Status, bytes.TrimSpace(msg))
		return
	}
	var out struct {
		AnomalyScore float64 `json:"anomaly_score"`
		Label        bool    `json:"label"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		logging.Errorf("decode response for event %d: %v", ev.Sequence, err)
		return
	}
	if kind == "" {
		kind = "normal"
	}
	logging.Infof("event %d (%s): score=%.4f label=%t", ev.Sequence, kind, out.AnomalyScore, out.Label)
}
