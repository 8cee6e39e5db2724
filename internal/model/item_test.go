package model

import (
	"errors"
	"testing"
)

func TestItemInputValidate(t *testing.T) {
	valid := ItemInput{Title: "Bike", Description: "Blue", Category: "sports", Type: ItemTypeBarter}

	tests := []struct {
		name    string
		mutate  func(in *ItemInput)
		wantErr bool
	}{
		{"valid", func(in *ItemInput) {}, false},
		{"missing title", func(in *ItemInput) { in.Title = "" }, true},
		{"missing description", func(in *ItemInput) { in.Description = "" }, true},
		{"missing category", func(in *ItemInput) { in.Category = "" }, true},
		{"missing type", func(in *ItemInput) { in.Type = "" }, true},
		{"unknown type", func(in *ItemInput) { in.Type = "sell" }, true},
		{"good image", func(in *ItemInput) { in.Images = []string{"https://img.example.com/a.jpg"} }, false},
		{"relative image", func(in *ItemInput) { in.Images = []string{"/a.jpg"} }, true},
		{"ftp image", func(in *ItemInput) { in.Images = []string{"ftp://example.com/a.jpg"} }, true},
	}

	for _, tt := range tests {
		in := valid
		tt.mutate(&in)
		err := in.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected validation kind, got %v", tt.name, err)
		}
	}
}

func TestItemInputNormalize(t *testing.T) {
	in := ItemInput{Title: "  Lamp ", Description: " desk lamp", Category: "home ", Type: " donate"}
	in.Normalize()
	if in.Title != "Lamp" || in.Category != "home" || in.Type != ItemTypeDonate {
		t.Errorf("unexpected normalized input: %+v", in)
	}
}

func TestOfferInputValidate(t *testing.T) {
	tests := []struct {
		in      OfferInput
		wantErr bool
	}{
		{OfferInput{ItemID: "i1", OfferedBy: "u1"}, false},
		{OfferInput{ItemID: "i1", OfferedBy: "u1", OfferItemID: "i2"}, false},
		{OfferInput{OfferedBy: "u1"}, true},
		{OfferInput{ItemID: "i1"}, true},
		{OfferInput{ItemID: "i1", OfferedBy: "u1", OfferItemID: "i1"}, true},
	}
	for _, tt := range tests {
		if err := tt.in.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	err := Conflictf("item %s is no longer available", "x")
	if !errors.Is(err, ErrConflict) {
		t.Error("expected errors.Is(err, ErrConflict)")
	}
	if errors.Is(err, ErrInvalidState) {
		t.Error("conflict must not match invalid state")
	}

	wrapped := errors.Join(errors.New("context"), err)
	if KindOf(wrapped) != KindConflict {
		t.Errorf("KindOf(wrapped) = %q", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("expected empty kind for plain error")
	}
}
