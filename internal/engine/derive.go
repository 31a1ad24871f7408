package engine

import (
	"fmt"

	"github.com/ajmeyer/waymark/internal/document"
	"github.com/ajmeyer/waymark/internal/model"
)

// EpochView pairs an epoch with both status representations. Derived is
// always computed; Effective is what scheduling and archival act on: the
// explicit stored status when present, the derived one otherwise.
// Disagreement between the two is reported, never silently fixed.
type EpochView struct {
	Epoch     model.Epoch
	Derived   model.Status
	Effective model.Status
	Drift     bool
}

func buildView(e model.Epoch) EpochView {
	v := EpochView{Epoch: e, Derived: model.DeriveStatus(e.Tasks)}
	if e.Stored != nil {
		v.Effective = *e.Stored
		v.Drift = *e.Stored != v.Derived
	} else {
		v.Effective = v.Derived
	}
	return v
}

// DeriveAll computes views for every epoch in the active store, plus the
// accumulated warnings: parse-time anomalies and explicit/derived drift.
func (e *Engine) DeriveAll() ([]EpochView, []model.Warning, error) {
	doc, err := e.loadEpochs()
	if err != nil {
		return nil, nil, err
	}
	views, warns := deriveViews(doc)
	return views, warns, nil
}

func deriveViews(doc *document.Doc) ([]EpochView, []model.Warning) {
	warns := append([]model.Warning(nil), doc.Warnings...)

	var views []EpochView
	for _, b := range doc.Epochs() {
		v := buildView(b.Epoch)
		if v.Drift {
			warns = append(warns, model.Warning{
				Code:    model.WarnStatusDrift,
				Subject: v.Epoch.EpochID,
				Message: fmt.Sprintf("explicit status %q disagrees with derived %q", v.Effective, v.Derived),
			})
		}
		views = append(views, v)
	}
	return views, warns
}
