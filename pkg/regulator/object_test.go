package regulator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/schema"
	"github.com/OFFIS-RIT/leech/pkg/schema/schematest"
	"github.com/OFFIS-RIT/leech/pkg/sensitive"

	"github.com/shopspring/decimal"
)

func vertexRegulator(t *testing.T, s *schema.Schema, name string, vault sensitive.Vault) *ObjectRegulator {
	t.Helper()
	entry, ok := s.Vertex(name)
	if !ok {
		t.Fatalf("fixture schema has no vertex %s", name)
	}
	return NewObjectRegulator(entry, vault)
}

func regulate(t *testing.T, r *ObjectRegulator, record map[string]any) *common.PotentialVertex {
	t.Helper()
	object, err := r.CreatePotentialVertexData(context.Background(), record, Supplied{})
	if err != nil {
		t.Fatalf("CreatePotentialVertexData returned error: %v", err)
	}
	return common.NewPotentialVertex(object)
}

func externalIDRecord() map[string]any {
	return map[string]any{
		"id_source": "Algernon",
		"id_type":   "Employees",
		"id_name":   "emp_id",
		"id_value":  json.Number("1001"),
	}
}

func TestExternalIDComplete(t *testing.T) {
	r := vertexRegulator(t, schematest.Load(t), "ExternalId", nil)
	v := regulate(t, r, externalIDRecord())

	want := identity.ComputeInternalID("AlgernonEmployeesemp_id1001")
	if v.InternalID != want {
		t.Fatalf("unexpected internal id: got %s, want %s", v.InternalID, want)
	}
	id, ok := v.IDValue.(decimal.Decimal)
	if !ok || !id.Equal(decimal.NewFromInt(1001)) {
		t.Fatalf("unexpected id value %#v", v.IDValue)
	}
	if v.IDValueField != "id_value" {
		t.Fatalf("unexpected id value field %q", v.IDValueField)
	}
	if v.Stem == nil || v.Stem.ObjectType != "ExternalId" {
		t.Fatalf("unexpected stem %v", v.Stem)
	}
	wantStem := `#vertex#ExternalId#{"id_source": "Algernon", "id_type": "Employees", "id_name": "emp_id", "id_value": 1001}#`
	if got := v.Stem.String(); got != wantStem {
		t.Fatalf("unexpected stem:\n got %s\nwant %s", got, wantStem)
	}
	if !v.IsIdentifiable() || v.IsStub() {
		t.Fatalf("expected an identifiable, complete vertex")
	}
}

func TestExternalIDMissingIDValue(t *testing.T) {
	r := vertexRegulator(t, schematest.Load(t), "ExternalId", nil)
	record := externalIDRecord()
	delete(record, "id_value")
	v := regulate(t, r, record)

	if v.IsIdentifiable() {
		t.Fatalf("vertex without id_value must not be identifiable")
	}
	if v.IsInternalIDSet() {
		t.Fatalf("expected unresolved internal id, got %s", v.InternalID)
	}
	if v.IDValue != "id_value" {
		t.Fatalf("expected id value placeholder, got %#v", v.IDValue)
	}
	if got := v.EffectiveStem().ObjectType; got != "ExternalId::stub" {
		t.Fatalf("expected stub stem type, got %q", got)
	}
	if !v.IsStub() {
		t.Fatalf("expected stub vertex")
	}
}

func TestNullStemFieldMarksStub(t *testing.T) {
	r := vertexRegulator(t, schematest.Load(t), "ExternalId", nil)
	record := externalIDRecord()
	record["id_name"] = ""
	v := regulate(t, r, record)

	if v.Stem == nil {
		t.Fatalf("expected a resolved stem")
	}
	if !v.Stem.IsStub() {
		t.Fatalf("expected stub suffix on %s", v.Stem)
	}
	want := identity.ComputeInternalID("AlgernonEmployeesNone1001")
	if v.InternalID != want {
		t.Fatalf("null key value must render as None: got %s, want %s", v.InternalID, want)
	}
}

func TestSuppliedIdentityWins(t *testing.T) {
	r := vertexRegulator(t, schematest.Load(t), "ExternalId", nil)
	stem := identity.NewVertexStem("ExternalId", identity.Pair{Field: "id_source", Value: "given"})
	supplied := Supplied{InternalID: "given-id", Stem: &stem, IDValue: "given-value"}

	object, err := r.CreatePotentialVertexData(context.Background(), externalIDRecord(), supplied)
	if err != nil {
		t.Fatalf("CreatePotentialVertexData returned error: %v", err)
	}
	if object.InternalID != "given-id" || object.Stem != &stem || object.IDValue != "given-value" {
		t.Fatalf("supplied identity was not kept: %+v", object)
	}
}

func TestStandardizeValue(t *testing.T) {
	number := schema.PropertyEntry{Name: "n", DataType: schema.TypeNumber}
	text := schema.PropertyEntry{Name: "s", DataType: schema.TypeString}
	date := schema.PropertyEntry{Name: "d", DataType: schema.TypeDateTime}

	tests := []struct {
		name     string
		property schema.PropertyEntry
		input    any
		want     any
	}{
		{name: "number from json", property: number, input: json.Number("12.50"), want: decimal.RequireFromString("12.5")},
		{name: "number from string", property: number, input: " 7 ", want: decimal.NewFromInt(7)},
		{name: "number from int", property: number, input: 3, want: decimal.NewFromInt(3)},
		{name: "number from timestamp", property: number, input: "2020-01-01T00:00:00Z", want: decimal.NewFromInt(1577836800)},
		{name: "string from number", property: text, input: json.Number("42"), want: "42"},
		{name: "string kept", property: text, input: "x", want: "x"},
		{name: "empty string is null", property: text, input: "", want: nil},
		{name: "nil stays nil", property: number, input: nil, want: nil},
		{name: "naive date is utc", property: date, input: "2020-01-02 03:04:05", want: "2020-01-02T03:04:05+0000"},
		{name: "date keeps offset", property: date, input: "2020-01-02T03:04:05+02:00", want: "2020-01-02T03:04:05+0200"},
		{name: "date from epoch", property: date, input: json.Number("1577836800"), want: "2020-01-01T00:00:00+0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := standardizeValue(tt.property, tt.input)
			if err != nil {
				t.Fatalf("standardizeValue returned error: %v", err)
			}
			if want, ok := tt.want.(decimal.Decimal); ok {
				d, isDecimal := got.(decimal.Decimal)
				if !isDecimal || !d.Equal(want) {
					t.Fatalf("unexpected value: got %#v, want %s", got, want)
				}
				return
			}
			if got != tt.want {
				t.Fatalf("unexpected value: got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestStandardizeValueErrors(t *testing.T) {
	tests := []struct {
		name     string
		property schema.PropertyEntry
		input    any
		wantErr  error
	}{
		{
			name:     "unknown data type",
			property: schema.PropertyEntry{Name: "x", DataType: "Blob"},
			input:    "x",
			wantErr:  ErrUnsupportedDataType,
		},
		{
			name:     "not a number",
			property: schema.PropertyEntry{Name: "x", DataType: schema.TypeNumber},
			input:    "twelve apples",
			wantErr:  ErrInvalidPropertyValue,
		},
		{
			name:     "not a date",
			property: schema.PropertyEntry{Name: "x", DataType: schema.TypeDateTime},
			input:    "sometime soon",
			wantErr:  ErrInvalidPropertyValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := standardizeValue(tt.property, tt.input); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUnsupportedDataTypeFailsRegulation(t *testing.T) {
	entry := &schema.VertexEntry{
		VertexName:       "Blob",
		VertexProperties: []schema.PropertyEntry{{Name: "payload", DataType: "Binary"}},
		InternalIDKey:    []string{"payload"},
	}
	_, err := NewObjectRegulator(entry, nil).CreatePotentialVertexData(context.Background(), map[string]any{"payload": "x"}, Supplied{})
	if !errors.Is(err, ErrUnsupportedDataType) {
		t.Fatalf("expected ErrUnsupportedDataType, got %v", err)
	}
}

func TestDateTimeIDValue(t *testing.T) {
	entry := &schema.VertexEntry{
		VertexName: "Visit",
		VertexProperties: []schema.PropertyEntry{
			{Name: "patient", DataType: schema.TypeString},
			{Name: "visited_at", DataType: schema.TypeDateTime},
		},
		InternalIDKey:  []string{"patient", "visited_at"},
		IdentifierStem: []string{"patient"},
		IDValueField:   "visited_at",
	}
	r := NewObjectRegulator(entry, nil)
	v := regulate(t, r, map[string]any{"patient": "p1", "visited_at": "2020-01-01T00:00:00Z"})

	id, ok := v.IDValue.(decimal.Decimal)
	if !ok || !id.Equal(decimal.NewFromInt(1577836800)) {
		t.Fatalf("expected epoch id value, got %#v", v.IDValue)
	}
	if v.Properties["visited_at"] != "2020-01-01T00:00:00+0000" {
		t.Fatalf("date property should keep its string form, got %#v", v.Properties["visited_at"])
	}
}

func TestSensitivePropertiesAreVaulted(t *testing.T) {
	ctx := context.Background()
	vault := sensitive.NewMemoryVault()
	r := vertexRegulator(t, schematest.Load(t), "Employee", vault)

	v := regulate(t, r, map[string]any{
		"id_source":  "Algernon",
		"emp_id":     json.Number("1001"),
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"ssn":        "123-45-6789",
		"hire_date":  "2019-05-01",
	})

	wantID := identity.ComputeInternalID("Algernonemp_id1001")
	if v.InternalID != wantID {
		t.Fatalf("unexpected internal id: got %s, want %s", v.InternalID, wantID)
	}

	token, ok := v.Properties["ssn"].(string)
	if !ok || token != sensitive.Token("ssn", v.InternalID) {
		t.Fatalf("ssn was not replaced by its token: %#v", v.Properties["ssn"])
	}
	serialized, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal vertex: %v", err)
	}
	if strings.Contains(string(serialized), "123-45-6789") {
		t.Fatalf("raw sensitive value leaked: %s", serialized)
	}

	stored, err := vault.Get(ctx, token)
	if err != nil {
		t.Fatalf("vault lookup failed: %v", err)
	}
	if stored != "123-45-6789" {
		t.Fatalf("vault returned %q", stored)
	}
}

func TestMissingSensitivePropertyGetsMarker(t *testing.T) {
	vault := sensitive.NewMemoryVault()
	r := vertexRegulator(t, schematest.Load(t), "Employee", vault)

	v := regulate(t, r, map[string]any{"id_source": "Algernon", "emp_id": 7})
	if v.Properties["ssn"] != sensitive.MissingValueMarker {
		t.Fatalf("expected missing marker, got %#v", v.Properties["ssn"])
	}
	if vault.Len() != 0 {
		t.Fatalf("nothing should be vaulted for a missing value")
	}
}

func TestSensitivePropertyNeedsIdentity(t *testing.T) {
	r := vertexRegulator(t, schematest.Load(t), "Employee", sensitive.NewMemoryVault())
	_, err := r.CreatePotentialVertexData(context.Background(), map[string]any{
		"id_source": "Algernon",
		"ssn":       "123-45-6789",
	}, Supplied{})
	if !errors.Is(err, ErrUnresolvedIdentity) {
		t.Fatalf("expected ErrUnresolvedIdentity, got %v", err)
	}
}

func TestSensitivePropertyNeedsVault(t *testing.T) {
	r := vertexRegulator(t, schematest.Load(t), "Employee", nil)
	_, err := r.CreatePotentialVertexData(context.Background(), map[string]any{
		"id_source": "Algernon",
		"emp_id":    1,
		"ssn":       "123-45-6789",
	}, Supplied{})
	if !errors.Is(err, ErrNoVault) {
		t.Fatalf("expected ErrNoVault, got %v", err)
	}
}
