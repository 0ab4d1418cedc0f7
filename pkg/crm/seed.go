package crm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Leads []*Lead `yaml:"leads"`
}

// LoadSeed reads leads from a YAML document of the form:
//
//	leads:
//	  - id: "1"
//	    firstName: Sophie
//	    ...
func LoadSeed(r io.Reader) ([]*Lead, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("crm: parse seed: %w", err)
	}
	for i, l := range f.Leads {
		if l == nil || l.ID == "" {
			return nil, fmt.Errorf("crm: seed lead #%d has no id", i+1)
		}
	}
	return f.Leads, nil
}

// LoadSeedFile is LoadSeed on a file path.
func LoadSeedFile(path string) ([]*Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("crm: open seed: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// Seed stores every lead not already present and returns how many were
// added. Existing leads keep their history.
func Seed(ctx context.Context, store Store, leads []*Lead) (int, error) {
	n := 0
	for _, l := range leads {
		_, err := store.GetLead(ctx, l.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrLeadNotFound) {
			return n, err
		}
		if err := store.UpdateLead(ctx, l); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// DemoLeads returns the sample leads used when no seed file is given.
func DemoLeads() []*Lead {
	return []*Lead{
		{
			ID: "1", FirstName: "Sophie", LastName: "Dubois",
			Phone: "+32 477 12 34 56", Email: "sophie.d@example.com",
			Status: StatusNew, Interest: InterestBuying,
			LastActivity: `Web Form: "Search for 2BR Apartment"`,
			Notes:        "Looking in Ghent area, budget ~350k.",
		},
		{
			ID: "2", FirstName: "Marc", LastName: "Peeters",
			Phone: "+32 486 98 76 54", Email: "m.peeters@telenet.be",
			Status: StatusQualified, Interest: InterestSelling,
			LastActivity: "Downloaded Seller Guide",
			Notes:        "Owns a villa in Brasschaat. Thinking of downsizing.",
		},
		{
			ID: "3", FirstName: "Elise", LastName: "Van Damme",
			Phone: "+32 499 11 22 33", Email: "elise.vd@gmail.com",
			Status: StatusContacted, Interest: InterestRenting,
			LastActivity: "Viewed Listing #402",
			Notes:        "Needs to move by next month.",
		},
		{
			ID: "4", FirstName: "Thomas", LastName: "Maes",
			Phone: "+32 472 55 66 77", Email: "thomas.maes@outlook.com",
			Status: StatusNew, Interest: InterestManagement,
			LastActivity: "Form: Property Management Inquiry",
			Notes:        "Inherited an apartment in Brussels, lives abroad.",
		},
	}
}
