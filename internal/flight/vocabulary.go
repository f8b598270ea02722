package flight

import (
	"sort"
	"strings"

	"github.com/rewired-gh/forecastkit/internal/models"
)

// Code is the integer encoding of a categorical label.
type Code int

// Other is the sentinel code for labels not seen during training.
const Other Code = -1

// Vocabulary is the closed, sorted set of labels one categorical column had at
// training time. Lookups are case- and whitespace-insensitive.
type Vocabulary struct {
	Labels []string

	index map[string]Code
}

// NewVocabulary builds a vocabulary from the observed labels. Empty labels are dropped.
func NewVocabulary(labels []string) *Vocabulary {
	seen := make(map[string]string)
	for _, l := range labels {
		key := normalizeLabel(l)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; !ok {
			seen[key] = strings.TrimSpace(l)
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	v := &Vocabulary{Labels: make([]string, len(keys))}
	for i, k := range keys {
		v.Labels[i] = seen[k]
	}
	v.reindex()
	return v
}

// reindex rebuilds the lookup map; it must run after gob decoding.
func (v *Vocabulary) reindex() {
	v.index = make(map[string]Code, len(v.Labels))
	for i, l := range v.Labels {
		v.index[normalizeLabel(l)] = Code(i)
	}
}

// Encode returns the label's code, or Other when it was never seen.
func (v *Vocabulary) Encode(label string) Code {
	if c, ok := v.index[normalizeLabel(label)]; ok {
		return c
	}
	return Other
}

// Len returns the number of known labels.
func (v *Vocabulary) Len() int { return len(v.Labels) }

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FeatureNames lists the encoded feature vector layout, in order.
var FeatureNames = []string{
	"airline", "source", "destination",
	"journey_day", "journey_month", "weekday",
	"dep_hour", "dep_minute", "arr_hour", "arr_minute",
	"duration_minutes", "total_stops", "additional_info",
}

// Encoder holds one vocabulary per categorical column.
type Encoder struct {
	Airline        *Vocabulary
	Source         *Vocabulary
	Destination    *Vocabulary
	AdditionalInfo *Vocabulary
}

// reindex restores lookup maps after decoding. gob drops empty vocabularies
// entirely, so nil columns come back as empty ones.
func (e *Encoder) reindex() {
	for _, v := range []**Vocabulary{&e.Airline, &e.Source, &e.Destination, &e.AdditionalInfo} {
		if *v == nil {
			*v = &Vocabulary{}
		}
		(*v).reindex()
	}
}

// NewEncoder learns the vocabularies from training records.
func NewEncoder(records []*models.FlightRecord) *Encoder {
	var airlines, sources, destinations, infos []string
	for _, r := range records {
		airlines = append(airlines, r.Airline)
		sources = append(sources, r.Source)
		destinations = append(destinations, r.Destination)
		infos = append(infos, r.AdditionalInfo)
	}
	return &Encoder{
		Airline:        NewVocabulary(airlines),
		Source:         NewVocabulary(sources),
		Destination:    NewVocabulary(destinations),
		AdditionalInfo: NewVocabulary(infos),
	}
}

// Features encodes a record into the layout described by FeatureNames.
// Unknown categories become Other rather than an error.
func (e *Encoder) Features(r *models.FlightRecord) []float64 {
	return []float64{
		float64(e.Airline.Encode(r.Airline)),
		float64(e.Source.Encode(r.Source)),
		float64(e.Destination.Encode(r.Destination)),
		float64(r.JourneyDay()),
		float64(r.JourneyMonth()),
		float64(r.Weekday()),
		float64(r.DepHour),
		float64(r.DepMinute),
		float64(r.ArrHour),
		float64(r.ArrMinute),
		float64(r.DurationMinutes),
		float64(r.TotalStops),
		float64(e.AdditionalInfo.Encode(r.AdditionalInfo)),
	}
}
