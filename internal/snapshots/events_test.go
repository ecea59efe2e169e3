package snapshots

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func TestRequestFromStream(t *testing.T) {
	tests := []struct {
		name       string
		jsonData   string
		expectedID string
		index      string
		query      interface{}
		wantErr    bool
	}{
		{
			name: "request with params",
			jsonData: `{
				"Keys": {
					"pk": {"S": "2Vd0bM8cT5Qx9q0kLzW1rX3yA4B"},
					"sk": {"S": "request"}
				},
				"NewImage": {
					"pk": {"S": "2Vd0bM8cT5Qx9q0kLzW1rX3yA4B"},
					"sk": {"S": "request"},
					"index": {"S": "vehicles"},
					"params": {
						"M": {
							"query": {"S": "bmw"},
							"hitsPerPage": {"N": "5"},
							"disjunctiveFacets": {"L": [{"S": "brand"}, {"S": "color"}]},
							"disjunctiveFacetsRefinements": {
								"M": {
									"brand": {"L": [{"S": "BMW"}]}
								}
							},
							"analytics": {"BOOL": false},
							"analyticsTags": {"NULL": true}
						}
					}
				},
				"SequenceNumber": "123456789",
				"SizeBytes": 1024,
				"StreamViewType": "NEW_IMAGE"
			}`,
			expectedID: "2Vd0bM8cT5Qx9q0kLzW1rX3yA4B",
			index:      "vehicles",
			query:      "bmw",
		},
		{
			name: "request without params",
			jsonData: `{
				"NewImage": {
					"pk": {"S": "abc"},
					"sk": {"S": "request"},
					"index": {"S": "vehicles"}
				},
				"SequenceNumber": "1",
				"SizeBytes": 10,
				"StreamViewType": "NEW_IMAGE"
			}`,
			expectedID: "abc",
			index:      "vehicles",
		},
		{
			name: "wrong attribute type",
			jsonData: `{
				"NewImage": {
					"pk": {"S": "bad"},
					"index": {"S": "vehicles"},
					"params": {"BOOL": true}
				},
				"SequenceNumber": "2",
				"SizeBytes": 10,
				"StreamViewType": "NEW_IMAGE"
			}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var record events.DynamoDBStreamRecord
			if err := json.Unmarshal([]byte(tt.jsonData), &record); err != nil {
				t.Fatalf("Failed to decode stream record: %v", err)
			}

			req, err := RequestFromStream(record.NewImage)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if req.ID != tt.expectedID {
				t.Errorf("Expected ID %q, got %q", tt.expectedID, req.ID)
			}
			if req.Index != tt.index {
				t.Errorf("Expected index %q, got %q", tt.index, req.Index)
			}
			if tt.query != nil && req.Params["query"] != tt.query {
				t.Errorf("Expected query %v, got %v", tt.query, req.Params["query"])
			}
		})
	}
}

func TestRequestFromStream_NestedValues(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"pk":    events.NewStringAttribute("id"),
		"sk":    events.NewStringAttribute(KindRequest),
		"index": events.NewStringAttribute("vehicles"),
		"params": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"page":   events.NewNumberAttribute("2"),
			"facets": events.NewListAttribute([]events.DynamoDBAttributeValue{events.NewStringAttribute("fuel")}),
		}),
	}

	req, err := RequestFromStream(image)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.Params["page"] != float64(2) {
		t.Errorf("Expected page 2, got %v (%T)", req.Params["page"], req.Params["page"])
	}
	facets, ok := req.Params["facets"].([]interface{})
	if !ok || len(facets) != 1 || facets[0] != "fuel" {
		t.Errorf("Unexpected facets: %#v", req.Params["facets"])
	}
}
