package models

import "testing"

func TestKeyRecord(t *testing.T) {
	valid := func() *KeyRecord {
		return &KeyRecord{TrackID: "t1", Key: 9, Mode: ModeMinor, Source: SourceAcousticBrainz}
	}

	t.Run("Validate", func(t *testing.T) {
		tt := []struct {
			name    string
			mutate  func(*KeyRecord)
			wantErr bool
		}{
			{name: "valid", mutate: func(*KeyRecord) {}},
			{name: "missing track id", mutate: func(k *KeyRecord) { k.TrackID = "" }, wantErr: true},
			{name: "key too high", mutate: func(k *KeyRecord) { k.Key = 12 }, wantErr: true},
			{name: "negative key", mutate: func(k *KeyRecord) { k.Key = -1 }, wantErr: true},
			{name: "bad mode", mutate: func(k *KeyRecord) { k.Mode = 2 }, wantErr: true},
			{name: "missing source", mutate: func(k *KeyRecord) { k.Source = "" }, wantErr: true},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				rec := valid()
				tc.mutate(rec)
				if err := rec.Validate(); (err != nil) != tc.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
				}
			})
		}
	})

	t.Run("SameResolution", func(t *testing.T) {
		a := valid()
		b := valid()
		conf := 0.7
		b.Confidence = &conf
		b.Title = "different title"

		if !a.SameResolution(b) {
			t.Error("records differing only in confidence and title should match")
		}

		b.ExternalRecordingID = "mbid"
		if a.SameResolution(b) {
			t.Error("records with different recording ids should not match")
		}

		if a.SameResolution(nil) {
			t.Error("record should not match nil")
		}
	})
}

func TestCredentialInputs(t *testing.T) {
	if !(CredentialInputs{}).Empty() {
		t.Error("zero inputs should be empty")
	}
	if (CredentialInputs{LocalAccessToken: "tok"}).Empty() {
		t.Error("inputs with a local token should not be empty")
	}
}
