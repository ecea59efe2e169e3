package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/letmevibethatforyou/instantsearch"
	"github.com/letmevibethatforyou/instantsearch/inmemory"
)

const fixture = `[
	{"objectID": "1", "make": "BMW", "model": "X3", "color": "Black", "price": 41000},
	{"objectID": "2", "make": "BMW", "model": "i3", "color": "White", "price": 22000},
	{"objectID": "3", "make": "Audi", "model": "A4", "color": "Black", "price": 38000},
	{"objectID": "4", "make": "Honda", "model": "Civic", "color": "Red", "price": 18000}
]`

type fakeSaver struct {
	saved map[string]instantsearch.Snapshot
	err   error
}

func (f *fakeSaver) Save(_ context.Context, id string, snap instantsearch.Snapshot) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.saved == nil {
		f.saved = make(map[string]instantsearch.Snapshot)
	}
	f.saved[id] = snap
	return id, nil
}

func newTestClient(t *testing.T) *inmemory.Client {
	t.Helper()
	client := inmemory.New()
	if _, err := client.LoadJSON("cars", []byte(fixture)); err != nil {
		t.Fatalf("LoadJSON failed: %v", err)
	}
	return client
}

func requestRecord(eventName, id, kind, index string, params map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	image := map[string]events.DynamoDBAttributeValue{
		"pk":    events.NewStringAttribute(id),
		"sk":    events.NewStringAttribute(kind),
		"index": events.NewStringAttribute(index),
	}
	if params != nil {
		image["params"] = events.NewMapAttribute(params)
	}
	return events.DynamoDBEventRecord{
		EventID:   "event-" + id,
		EventName: eventName,
		Change: events.DynamoDBStreamRecord{
			NewImage: image,
		},
	}
}

func blackCarsParams() map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"query":       events.NewStringAttribute(""),
		"hitsPerPage": events.NewNumberAttribute("10"),
		"page":        events.NewNumberAttribute("1"),
		"facets": events.NewListAttribute([]events.DynamoDBAttributeValue{
			events.NewStringAttribute("color"),
		}),
		"facetsRefinements": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"color": events.NewListAttribute([]events.DynamoDBAttributeValue{
				events.NewStringAttribute("Black"),
			}),
		}),
	}
}

func TestHandleDynamoDBEvent_HydratesRequest(t *testing.T) {
	saver := &fakeSaver{}
	handler := NewHandler(newTestClient(t), saver, time.Second)

	event := events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			requestRecord("INSERT", "req-1", "request", "cars", blackCarsParams()),
		},
	}

	if err := handler.HandleDynamoDBEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleDynamoDBEvent failed: %v", err)
	}

	snap, ok := saver.saved["req-1"]
	if !ok {
		t.Fatalf("Expected snapshot saved under req-1, got %v", saver.saved)
	}
	if len(snap.Helper.Response) != 1 {
		t.Fatalf("Expected 1 raw response, got %d", len(snap.Helper.Response))
	}
	if got := snap.Helper.Response[0].NbHits; got != 2 {
		t.Errorf("Expected 2 black cars, got %d", got)
	}
	if got := snap.Helper.SearchParameters["index"]; got != "cars" {
		t.Errorf("Expected index cars, got %v", got)
	}
	if got := snap.Helper.SearchParameters["page"]; got != 0 {
		t.Errorf("Expected stored page 0, got %v", got)
	}
	if snap.Helper.AppID != inmemory.AppID {
		t.Errorf("Expected app ID %q, got %q", inmemory.AppID, snap.Helper.AppID)
	}
}

func TestHandleDynamoDBEvent_IgnoresRecords(t *testing.T) {
	tests := map[string]events.DynamoDBEventRecord{
		"modify":   requestRecord("MODIFY", "req-1", "request", "cars", blackCarsParams()),
		"remove":   requestRecord("REMOVE", "req-1", "request", "cars", blackCarsParams()),
		"snapshot": requestRecord("INSERT", "req-1", "snapshot", "cars", nil),
		"no index": requestRecord("INSERT", "req-1", "request", "", blackCarsParams()),
		"no image": {EventID: "event-x", EventName: "INSERT"},
		"bad params": requestRecord("INSERT", "req-1", "request", "cars", map[string]events.DynamoDBAttributeValue{
			"hitsPerPage": events.NewStringAttribute("many"),
		}),
	}

	for name, record := range tests {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t)
			saver := &fakeSaver{}
			handler := NewHandler(client, saver, time.Second)

			event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{record}}
			if err := handler.HandleDynamoDBEvent(context.Background(), event); err != nil {
				t.Fatalf("Expected record to be skipped, got %v", err)
			}
			if len(saver.saved) != 0 {
				t.Errorf("Expected nothing saved, got %v", saver.saved)
			}
			if client.Searches() != 0 {
				t.Errorf("Expected no search, got %d", client.Searches())
			}
		})
	}
}

func TestHandleDynamoDBEvent_SearchFailure(t *testing.T) {
	saver := &fakeSaver{}
	handler := NewHandler(newTestClient(t), saver, time.Second)

	event := events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			requestRecord("INSERT", "req-1", "request", "trucks", blackCarsParams()),
		},
	}

	err := handler.HandleDynamoDBEvent(context.Background(), event)
	if !errors.Is(err, instantsearch.ErrBackendUnavailable) {
		t.Fatalf("Expected ErrBackendUnavailable for an unknown index, got %v", err)
	}
	if len(saver.saved) != 0 {
		t.Errorf("Expected nothing saved, got %v", saver.saved)
	}
}

func TestHandleDynamoDBEvent_SaveFailure(t *testing.T) {
	saveErr := errors.New("table unavailable")
	handler := NewHandler(newTestClient(t), &fakeSaver{err: saveErr}, time.Second)

	event := events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			requestRecord("INSERT", "req-1", "request", "cars", blackCarsParams()),
		},
	}

	if err := handler.HandleDynamoDBEvent(context.Background(), event); !errors.Is(err, saveErr) {
		t.Fatalf("Expected save error, got %v", err)
	}
}
