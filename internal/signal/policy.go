package signal

import "time"

// Policy is the static severity/category/expiry assignment for one signal
// type. A lookup table rather than ad-hoc computation keeps the behavior
// auditable and testable.
type Policy struct {
	Severity Severity
	Category string
	TTL      time.Duration
}

// Policies maps every registered signal type to its policy. Detector types
// without a row here fail loudly at engine construction.
var Policies = map[string]Policy{
	TypeManeuver:          {Severity: SeverityHigh, Category: "orbital", TTL: 14 * 24 * time.Hour},
	TypeDivergence:        {Severity: SeverityMedium, Category: "orbital", TTL: 7 * 24 * time.Hour},
	TypeFreshnessCritical: {Severity: SeverityMedium, Category: "data-quality", TTL: 3 * 24 * time.Hour},
	TypeDragUnverifiable:  {Severity: SeverityLow, Category: "data-quality", TTL: 7 * 24 * time.Hour},
	TypeRegulatoryPatent:  {Severity: SeverityMedium, Category: "competitive", TTL: 7 * 24 * time.Hour},
	TypeFilingCadence:     {Severity: SeverityMedium, Category: "regulatory", TTL: 7 * 24 * time.Hour},
	TypePriceVolume:       {Severity: SeverityHigh, Category: "market", TTL: 7 * 24 * time.Hour},
}
