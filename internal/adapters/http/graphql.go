package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/graphql-go/graphql"

	"github.com/asierbarrena/oficios/internal/core/domain"
)

type gqlUserKey struct{}

// gqlUser pulls the acting user ID out of the resolver context.
func gqlUser(ctx context.Context) (string, error) {
	id, _ := ctx.Value(gqlUserKey{}).(string)
	if id == "" {
		return "", errors.New("missing X-User-ID header")
	}
	return id, nil
}

// buildSchema creates the GraphQL schema wired to our services.
// All queries are scoped to the authenticated caller; there is no
// way to read another user's requests or applications through here.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	zoneType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CoverageZone",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"provider_id": &graphql.Field{Type: graphql.String},
			"center":      &graphql.Field{Type: geoPointType},
			"radius_km":   &graphql.Field{Type: graphql.Float},
		},
	})

	requestType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ServiceRequest",
		Fields: graphql.Fields{
			"id":                  &graphql.Field{Type: graphql.String},
			"requester_id":        &graphql.Field{Type: graphql.String},
			"category_id":         &graphql.Field{Type: graphql.String},
			"location":            &graphql.Field{Type: geoPointType},
			"description":         &graphql.Field{Type: graphql.String},
			"requires_credential": &graphql.Field{Type: graphql.Boolean},
			"status":              &graphql.Field{Type: graphql.String},
			"version":             &graphql.Field{Type: graphql.Int},
		},
	})

	applicationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Application",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"request_id":  &graphql.Field{Type: graphql.String},
			"provider_id": &graphql.Field{Type: graphql.String},
			"message":     &graphql.Field{Type: graphql.String},
			"status":      &graphql.Field{Type: graphql.String},
			"version":     &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"feed": &graphql.Field{
				Type:        graphql.NewList(requestType),
				Description: "Open requests visible to the calling provider",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					uid, err := gqlUser(p.Context)
					if err != nil {
						return nil, err
					}
					return deps.Match.VisibleRequests(p.Context, uid)
				},
			},
			"myRequests": &graphql.Field{
				Type:        graphql.NewList(requestType),
				Description: "Requests posted by the caller",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					uid, err := gqlUser(p.Context)
					if err != nil {
						return nil, err
					}
					return deps.Requests.ListForRequester(p.Context, uid)
				},
			},
			"request": &graphql.Field{
				Type:        requestType,
				Description: "Get a service request by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Requests.GetByID(p.Context, id)
				},
			},
			"requestApplications": &graphql.Field{
				Type:        graphql.NewList(applicationType),
				Description: "Applications on a request the caller owns",
				Args: graphql.FieldConfigArgument{
					"request_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					uid, err := gqlUser(p.Context)
					if err != nil {
						return nil, err
					}
					requestID := p.Args["request_id"].(string)
					req, err := deps.Requests.GetByID(p.Context, requestID)
					if err != nil {
						return nil, err
					}
					if req.RequesterID != uid {
						return nil, domain.ErrUnauthorized
					}
					return deps.Applications.ListForRequest(p.Context, requestID)
				},
			},
			"myApplications": &graphql.Field{
				Type:        graphql.NewList(applicationType),
				Description: "Applications submitted by the calling provider",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					uid, err := gqlUser(p.Context)
					if err != nil {
						return nil, err
					}
					return deps.Applications.ListForProvider(p.Context, uid)
				},
			},
			"myZones": &graphql.Field{
				Type:        graphql.NewList(zoneType),
				Description: "Coverage zones declared by the calling provider",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					uid, err := gqlUser(p.Context)
					if err != nil {
						return nil, err
					}
					return deps.Zones.ListByProvider(p.Context, uid)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		ctx := context.WithValue(c.UserContext(), gqlUserKey{}, utils.CopyString(c.Get("X-User-ID")))

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        ctx,
		})

		return c.JSON(result)
	}
}
