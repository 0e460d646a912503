// Command petshop is a small inventory API. Pets share a "#pet" schema
// reference, and writes require an API key header:
//
//	petshop call add_pet '{"name":"rex","tags":["dog"]}' -H X-Api-Key=k-123
package main

import (
	"context"
	"log"
	"net/http"
	"slices"
	"sync"

	"github.com/mnehpets/schemarpc/cli"
	"github.com/mnehpets/schemarpc/jsonrpc"
	"github.com/mnehpets/schemarpc/schema"
)

// CodePetNotFound is returned by get_pet for an unknown id.
const CodePetNotFound = 404

type Pet struct {
	ID   int      `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

type Shop struct {
	mu   sync.Mutex
	next int
	pets map[int]Pet
}

func NewShop() *Shop {
	return &Shop{next: 1, pets: map[int]Pet{}}
}

type AddPetParams struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func (s *Shop) AddPet(_ context.Context, p AddPetParams, _ http.Header) (Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pet := Pet{ID: s.next, Name: p.Name, Tags: p.Tags}
	s.pets[pet.ID] = pet
	s.next++
	return pet, nil
}

type GetPetParams struct {
	ID int `json:"id"`
}

func (s *Shop) GetPet(_ context.Context, p GetPetParams, _ http.Header) (Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pet, ok := s.pets[p.ID]
	if !ok {
		return Pet{}, jsonrpc.NewHandlerError(CodePetNotFound, "pet not found", map[string]int{"id": p.ID})
	}
	return pet, nil
}

type ListPetsParams struct {
	Tag string `json:"tag"`
}

func (s *Shop) ListPets(_ context.Context, p ListPetsParams, _ http.Header) ([]Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Pet{}
	for _, pet := range s.pets {
		if p.Tag == "" || slices.Contains(pet.Tags, p.Tag) {
			out = append(out, pet)
		}
	}
	slices.SortFunc(out, func(a, b Pet) int { return a.ID - b.ID })
	return out, nil
}

var (
	petSchema = schema.MustParse(`{
		"$id": "#pet",
		"description": "A pet in the shop.",
		"type": "object",
		"required": ["id", "name"],
		"properties": {
			"id": {"type": "integer"},
			"name": {"type": "string", "minLength": 1},
			"tags": {"$ref": "#tags"}
		}
	}`)
	tagsSchema = schema.MustParse(`{
		"$id": "#tags",
		"type": "array",
		"items": {"type": "string"}
	}`)
)

type method struct {
	name, summary  string
	handler        jsonrpc.Handler
	params, result string
	apiKey         bool
}

func registry(shop *Shop) (*jsonrpc.Registry, error) {
	reg := jsonrpc.NewRegistry("Pet Shop", "Inventory of pets for sale.")
	for _, doc := range []schema.Document{petSchema, tagsSchema} {
		if _, err := reg.RegisterReference(doc); err != nil {
			return nil, err
		}
	}

	methods := []method{
		{
			name: "add_pet", summary: "Add a pet to the inventory",
			handler: jsonrpc.Typed(shop.AddPet),
			params: `{
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"tags": {"$ref": "#tags"}
				}
			}`,
			result: `{"$ref": "#pet"}`,
			apiKey: true,
		},
		{
			name: "get_pet", summary: "Fetch a pet by id",
			handler: jsonrpc.Typed(shop.GetPet),
			params: `{
				"type": "object",
				"required": ["id"],
				"properties": {"id": {"type": "integer"}}
			}`,
			result: `{"$ref": "#pet"}`,
		},
		{
			name: "list_pets", summary: "List pets, optionally by tag",
			handler: jsonrpc.Typed(shop.ListPets),
			params: `{
				"type": "object",
				"properties": {"tag": {"type": "string"}}
			}`,
			result: `{"type": "array", "items": {"$ref": "#pet"}}`,
		},
	}
	for _, m := range methods {
		h, err := reg.Register(m.name, m.summary, m.handler)
		if err != nil {
			return nil, err
		}
		if err := reg.Params(h, schema.MustParse(m.params)); err != nil {
			return nil, err
		}
		if err := reg.Result(h, schema.MustParse(m.result)); err != nil {
			return nil, err
		}
		if m.apiKey {
			if err := reg.RequireHeader(h, "X-Api-Key", `k-[0-9]+`); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

func main() {
	reg, err := registry(NewShop())
	if err != nil {
		log.Fatal(err)
	}
	cli.Execute("petshop", reg)
}
