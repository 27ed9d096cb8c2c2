package strapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// entity is one record in either response shape:
//
//	{"id": 1, "attributes": {"name": "..."}}   (v4)
//	{"id": 1, "documentId": "...", "name": "..."} (v5)
//
// Fields always holds the flat attribute map.
type entity struct {
	ID     int64
	Fields map[string]json.RawMessage
}

func (e *entity) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if idRaw, ok := raw["id"]; ok {
		id, err := parseID(idRaw)
		if err != nil {
			return fmt.Errorf("entity id: %w", err)
		}
		e.ID = id
	}

	if attrs, ok := raw["attributes"]; ok && !isNull(attrs) {
		e.Fields = make(map[string]json.RawMessage)
		if err := json.Unmarshal(attrs, &e.Fields); err != nil {
			return fmt.Errorf("entity attributes: %w", err)
		}
		return nil
	}
	delete(raw, "id")
	e.Fields = raw
	return nil
}

// decode fills a typed DTO from the flat attribute map.
func (e *entity) decode(out any) error {
	b, err := json.Marshal(e.Fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// relation accepts a related record in any of the shapes the API emits:
// {"data": {"id": 3, ...}}, {"data": null}, {"id": 3, ...}, 3 or null.
type relation struct {
	ID   int64
	Name string
}

func (r *relation) UnmarshalJSON(b []byte) error {
	*r = relation{}
	if isNull(b) {
		return nil
	}
	if b[0] != '{' {
		id, err := parseID(b)
		if err != nil {
			return fmt.Errorf("relation: %w", err)
		}
		r.ID = id
		return nil
	}

	var wrapped struct {
		Data *json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	if wrapped.Data != nil {
		if isNull(*wrapped.Data) {
			return nil
		}
		b = *wrapped.Data
	}

	var e entity
	if err := json.Unmarshal(b, &e); err != nil {
		return err
	}
	r.ID = e.ID
	if name, ok := e.Fields["name"]; ok {
		_ = json.Unmarshal(name, &r.Name)
	}
	return nil
}

// flexString reads either a plain string or a relation, keeping the related name.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var r relation
	if err := r.UnmarshalJSON(b); err != nil {
		return err
	}
	if r.Name != "" {
		*s = flexString(r.Name)
	} else if r.ID != 0 {
		*s = flexString(strconv.FormatInt(r.ID, 10))
	}
	return nil
}

func parseID(b []byte) (int64, error) {
	b = bytes.Trim(b, `"`)
	return strconv.ParseInt(string(b), 10, 64)
}

func isNull(b []byte) bool {
	return len(b) == 0 || bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

// envelope is the top-level {"data": ..., "meta": ...} wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		Pagination struct {
			Page      int `json:"page"`
			PageSize  int `json:"pageSize"`
			PageCount int `json:"pageCount"`
			Total     int `json:"total"`
		} `json:"pagination"`
	} `json:"meta"`
}

func (e *envelope) one() (*entity, error) {
	if isNull(e.Data) {
		return nil, nil
	}
	var ent entity
	if err := json.Unmarshal(e.Data, &ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

func (e *envelope) many() ([]entity, error) {
	if isNull(e.Data) {
		return nil, nil
	}
	var ents []entity
	if err := json.Unmarshal(e.Data, &ents); err != nil {
		return nil, err
	}
	return ents, nil
}
