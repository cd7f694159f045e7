// Package domain models Transport for London road-accident data.
//
// # Data Source
//
// Records come from the TfL AccidentStats API, one request per calendar year:
//
//	GET https://api.tfl.gov.uk/AccidentStats/{year}
//
// The response is a JSON array. Every record and every nested item carries a
// "$type" discriminator naming the .NET type that produced it, e.g.
// "Tfl.Api.Presentation.Entities.AccidentStats.AccidentDetail, Tfl.Api.Presentation.Entities".
// The discriminator has no analytical value and is stripped before load.
//
// # Record Shape
//
//	{
//	  "$type": "...AccidentDetail, ...",
//	  "id": 345979,
//	  "lat": 51.570865,
//	  "lon": -0.231959,
//	  "location": "On Edgware Road Near The Junction With Wakemans Hill Avenue",
//	  "date": "2019-01-30T21:30:00Z",
//	  "severity": "Slight",
//	  "borough": "Barnet",
//	  "casualties": [{"$type": "...", "age": 30, "class": "Driver", "severity": "Slight", "mode": "Car", "ageBand": "Adult"}],
//	  "vehicles": [{"$type": "...", "type": "Car"}]
//	}
//
// Severity is one of "Slight", "Serious", "Fatal". Casualty ages are integers
// but may be missing; vehicle items carry a single "type" field.
//
// # Normalization
//
// Raw CSV artifacts are normalized by [Normalize] into [NormalizedAccidentRow]:
// "id" becomes accident_id, "date" becomes accident_date, unknown columns are
// dropped, and the nested casualties/vehicles arrays are re-encoded as JSON
// with the discriminator removed. Rows without a numeric identifier are
// excluded; other unparseable fields become NULL.
//
// # Weather
//
// Daily London weather (European Climate Assessment export) is joined on date
// for the weather analytics. See [ClassifyWeather] for the category rules.
package domain
