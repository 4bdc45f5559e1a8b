package domain

import (
	"encoding/json"
	"time"
)

// PullOptions bounds a pull. Since is the client watermark (zero means full
// sync); Limit caps the record count per table, 0 falling back to the server
// default.
type PullOptions struct {
	Since time.Time
	Limit int
}

// PullPayload is the delta stream of one pull: every record in scope changed
// after the watermark, grouped by table, tombstones included. On the wire the
// tables sit at the top level next to synced_at.
type PullPayload struct {
	Tables   map[Table][]*Record
	SyncedAt time.Time
}

func (p *PullPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Tables)+1)
	for table, records := range p.Tables {
		out[string(table)] = records
	}
	out["synced_at"] = p.SyncedAt
	return json.Marshal(out)
}

func (p *PullPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Tables = make(map[Table][]*Record)
	for key, value := range raw {
		if key == "synced_at" {
			if err := json.Unmarshal(value, &p.SyncedAt); err != nil {
				return err
			}
			continue
		}
		if _, ok := LookupTable(key); !ok {
			continue
		}
		var records []*Record
		if err := json.Unmarshal(value, &records); err != nil {
			return err
		}
		p.Tables[Table(key)] = records
	}

	return nil
}
