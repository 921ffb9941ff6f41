package linqpipe_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tryvium-travels/memongo"

	"github.com/marrow-systems/linqpipe"
	"github.com/marrow-systems/linqpipe/expr"
)

type product struct {
	ID      bson.ObjectID `bson:"_id,omitempty"`
	Name    string        `bson:"name"`
	Price   int           `bson:"price"`
	Country string        `bson:"country"`
	InStock bool          `bson:"inStock"`
	Tags    []string      `bson:"tags,omitempty"`
}

var (
	mongoServer *memongo.Server
	testClient  *mongo.Client
	testDB      *mongo.Database
)

func TestMain(m *testing.M) {
	var err error
	mongoServer, err = memongo.StartWithOptions(&memongo.Options{
		MongoVersion: "8.2.5",
	})
	if err != nil {
		log.Fatalf("memongo start: %v", err)
	}

	dbName := memongo.RandomDatabase()
	clientOpts := mongooptions.Client().ApplyURI(mongoServer.URI())
	testClient, err = mongo.Connect(clientOpts)
	if err != nil {
		log.Fatalf("mongo connect: %v", err)
	}

	testDB = testClient.Database(dbName)

	code := m.Run()

	_ = testClient.Disconnect(context.Background())
	mongoServer.Stop()
	os.Exit(code)
}

func freshCollection(t *testing.T) *mongo.Collection {
	t.Helper()
	coll := testDB.Collection(t.Name())
	_ = coll.Drop(context.Background())
	return coll
}

func seedProducts(t *testing.T, coll *mongo.Collection) {
	t.Helper()
	ctx := context.Background()
	docs := []any{
		product{Name: "Widget", Price: 10, Country: "US", InStock: true, Tags: []string{"a", "b"}},
		product{Name: "Gadget", Price: 25, Country: "US", InStock: true, Tags: []string{"b"}},
		product{Name: "Gizmo", Price: 15, Country: "UK", InStock: false},
		product{Name: "Doohickey", Price: 40, Country: "UK", InStock: true, Tags: []string{"a"}},
	}
	_, err := coll.InsertMany(ctx, docs)
	require.NoError(t, err)
}

// runPipeline translates p and runs it against coll, decoding results into dst.
func runPipeline(t *testing.T, coll *mongo.Collection, p expr.Pipeline, dst any) {
	t.Helper()
	result, err := linqpipe.Build(p, linqpipe.TranslateOptions{})
	require.NoError(t, err)

	cursor, err := coll.Aggregate(context.Background(), result.BsonD())
	require.NoError(t, err)
	require.NoError(t, cursor.All(context.Background(), dst))
}

func TestIntegrationWhereSelectSort(t *testing.T) {
	coll := freshCollection(t)
	seedProducts(t, coll)

	p := expr.NewPipeline(
		expr.Stage{
			Kind: expr.StageWhere, Var: "p",
			Body: expr.NewBinary(expr.Eq, expr.NewScopedField("country", "p"), expr.NewConstant("US", expr.TypeString), expr.TypeBool),
		},
		expr.Stage{
			Kind: expr.StageSelect,
			Body: expr.NewMemberInit(
				expr.Member{Name: "name", Value: expr.NewField("name")},
				expr.Member{Name: "price", Value: expr.NewField("price")},
			),
		},
		expr.Stage{Kind: expr.StageOrderBy, SortKeyName: "price", SortKey: expr.NewField("price"), Ascending: true},
	)

	var out []struct {
		Name  string `bson:"name"`
		Price int    `bson:"price"`
	}
	runPipeline(t, coll, p, &out)

	require.Len(t, out, 2)
	assert.Equal(t, "Widget", out[0].Name)
	assert.Equal(t, "Gadget", out[1].Name)
}

func TestIntegrationGroupByWithSumAccumulator(t *testing.T) {
	coll := freshCollection(t)
	seedProducts(t, coll)

	p := expr.NewPipeline(expr.Stage{
		Kind: expr.StageGroupBy, Var: "p",
		Body: expr.NewField("country"),
		ResultSelector: expr.NewMemberInit(
			expr.Member{Name: "Key", Value: expr.NewGroupingKey(expr.NewField("country"))},
			expr.Member{Name: "total", Value: expr.NewAccumulator(expr.AccSum, expr.NewField("price"))},
		),
	})

	var out []struct {
		Country string `bson:"_id"`
		Total   int    `bson:"total"`
	}
	runPipeline(t, coll, p, &out)

	require.Len(t, out, 2)
	totals := map[string]int{}
	for _, row := range out {
		totals[row.Country] = row.Total
	}
	assert.Equal(t, 35, totals["US"])
	assert.Equal(t, 55, totals["UK"])
}

func TestIntegrationSkipTake(t *testing.T) {
	coll := freshCollection(t)
	seedProducts(t, coll)

	p := expr.NewPipeline(
		expr.Stage{Kind: expr.StageOrderBy, SortKeyName: "price", SortKey: expr.NewField("price"), Ascending: true},
		expr.Stage{Kind: expr.StageSkip, Count: 1},
		expr.Stage{Kind: expr.StageTake, Count: 2},
	)

	var out []product
	runPipeline(t, coll, p, &out)

	require.Len(t, out, 2)
	assert.Equal(t, "Gizmo", out[0].Name)
	assert.Equal(t, "Gadget", out[1].Name)
}

func TestIntegrationDistinct(t *testing.T) {
	coll := freshCollection(t)
	seedProducts(t, coll)

	p := expr.NewPipeline(
		expr.Stage{
			Kind: expr.StageSelect,
			Body: expr.NewMemberInit(expr.Member{Name: "country", Value: expr.NewField("country")}),
		},
		expr.Stage{Kind: expr.StageDistinct},
	)

	var out []struct {
		ID struct {
			Country string `bson:"country"`
		} `bson:"_id"`
	}
	runPipeline(t, coll, p, &out)
	assert.Len(t, out, 2)
}

func TestIntegrationResultCount(t *testing.T) {
	coll := freshCollection(t)
	seedProducts(t, coll)

	p := expr.NewPipeline(expr.Stage{
		Kind: expr.StageWhere, Var: "p",
		Body: expr.NewBinary(expr.Eq, expr.NewScopedField("inStock", "p"), expr.NewConstant(true, expr.TypeBool), expr.TypeBool),
	}).WithResult(expr.ResultOperator{Kind: expr.ResultCount})

	var out []struct {
		Count int `bson:"count"`
	}
	runPipeline(t, coll, p, &out)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].Count)
}

func TestIntegrationCacheReusesTranslation(t *testing.T) {
	coll := freshCollection(t)
	seedProducts(t, coll)

	p := expr.NewPipeline(expr.Stage{
		Kind: expr.StageWhere, Var: "p",
		Body: expr.NewBinary(expr.Gt, expr.NewScopedField("price", "p"), expr.NewConstant(12, expr.TypeNumber), expr.TypeBool),
	})

	c := linqpipe.NewTranslationCache(0, 0)
	ctx := context.Background()

	result, err := c.BuildCached(ctx, p, linqpipe.TranslateOptions{})
	require.NoError(t, err)
	cursor, err := coll.Aggregate(ctx, result.BsonD())
	require.NoError(t, err)
	var first []product
	require.NoError(t, cursor.All(ctx, &first))

	result2, err := c.BuildCached(ctx, p, linqpipe.TranslateOptions{})
	require.NoError(t, err)
	cursor2, err := coll.Aggregate(ctx, result2.BsonD())
	require.NoError(t, err)
	var second []product
	require.NoError(t, cursor2.All(ctx, &second))

	assert.Equal(t, len(first), len(second))
	assert.Len(t, first, 3)
}
