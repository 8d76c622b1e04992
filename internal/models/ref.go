package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Ref is a foreign key as the backend sends it: either a bare id string or an
// embedded document exposing "_id" or "id". It is normalized once when the
// payload is decoded.
type Ref struct {
	ID       string // bare string form
	ObjectID string // embedded "_id"
	AltID    string // embedded "id"
	Embedded bool

	Name  string
	Phone string

	// Nested references carried by embedded documents: a bus embedding its
	// driver, or a trip embedding its bus and driver.
	Driver *Ref
	Bus    *Ref
}

// NewRef returns a bare id reference.
func NewRef(id string) Ref {
	return Ref{ID: id}
}

// Key resolves the reference id: embedded _id, then embedded id, then the
// bare string.
func (r Ref) Key() string {
	if r.ObjectID != "" {
		return r.ObjectID
	}
	if r.AltID != "" {
		return r.AltID
	}
	return r.ID
}

func (r Ref) IsZero() bool {
	return r.Key() == "" && !r.Embedded
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	*r = Ref{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] != '{' {
		var id flexString
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		r.ID = string(id)
		return nil
	}

	var aux struct {
		ObjectID flexString `json:"_id"`
		AltID    flexString `json:"id"`
		Name     string     `json:"name"`
		FullName string     `json:"fullName"`
		Phone    string     `json:"phone"`
		Driver   *Ref       `json:"driverId"`
		Bus      *Ref       `json:"busId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Embedded = true
	r.ObjectID = string(aux.ObjectID)
	r.AltID = string(aux.AltID)
	r.Name = aux.Name
	if r.Name == "" {
		r.Name = aux.FullName
	}
	r.Phone = aux.Phone
	if aux.Driver != nil && !aux.Driver.IsZero() {
		r.Driver = aux.Driver
	}
	if aux.Bus != nil && !aux.Bus.IsZero() {
		r.Bus = aux.Bus
	}
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.Embedded {
		if r.ID == "" {
			return []byte("null"), nil
		}
		return json.Marshal(r.ID)
	}

	out := map[string]interface{}{}
	if r.ObjectID != "" {
		out["_id"] = r.ObjectID
	}
	if r.AltID != "" {
		out["id"] = r.AltID
	}
	if r.Name != "" {
		out["name"] = r.Name
	}
	if r.Phone != "" {
		out["phone"] = r.Phone
	}
	if r.Driver != nil {
		out["driverId"] = r.Driver
	}
	if r.Bus != nil {
		out["busId"] = r.Bus
	}
	return json.Marshal(out)
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}
