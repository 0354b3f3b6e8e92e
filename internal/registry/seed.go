package registry

import "github.com/example/certverify/internal/certificate"

// SeedRecords is the built-in mirror used when no other source is configured.
// JH-RU-2021-004567 is deliberately issued twice; it is a known cloned number.
func SeedRecords() []certificate.RegistryRecord {
	return []certificate.RegistryRecord{
		{
			CertificateNumber: "JH-NU-2019-000123",
			Fingerprint:       "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
			HolderName:        "Asha Kumari",
			Institution:       "Jharkhand National University",
			Course:            "B.Sc Physics",
			Year:              2019,
		},
		{
			CertificateNumber: "JH-RU-2021-004567",
			Fingerprint:       "60303ae22b998861bce3b28f33eec1be758a213c86c93c076dbe9f558c11c752",
			HolderName:        "Rahul Mahto",
			Institution:       "Ranchi University",
			Course:            "B.Com",
			Year:              2021,
		},
		{
			CertificateNumber: "JH-RU-2021-004567",
			Fingerprint:       "fd61a03af4f77d870fc21e05e7e80678095c92d808cfb3b5c279ee04c74aca13",
			HolderName:        "Priya Oraon",
			Institution:       "Ranchi University",
			Course:            "B.A. Economics",
			Year:              2021,
		},
		{
			CertificateNumber: "JH-VB-2020-010042",
			Fingerprint:       "a4e624d686e03ed2767c0abd85c14426b0b1157d2ce81d27bb4fe4f6f01d688a",
			HolderName:        "Sunil Tudu",
			Institution:       "Vinoba Bhave University",
			Course:            "M.Sc Chemistry",
			Year:              2020,
		},
		{
			CertificateNumber: "JH-KU-2018-000987",
			Fingerprint:       "a140c0c1eda2def2b830363ba362aa4d7d255c262960544821f556e16661b6ff",
			HolderName:        "Meena Soren",
			Institution:       "Kolhan University",
			Course:            "B.Ed",
			Year:              2018,
		},
	}
}
