package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for course documents.
const DefaultIndexName = "catalog_courses"

// buildIndexMapping returns the full JSON mapping for the courses index,
// including an English analyzer and an edge-ngram autocomplete field on
// the title.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "english_analyzer": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "english_stop", "english_stemmer"]
        },
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      },
      "filter": {
        "english_stop": {
          "type": "stop",
          "stopwords": "_english_"
        },
        "english_stemmer": {
          "type": "stemmer",
          "language": "english"
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":               { "type": "keyword" },
      "title":            { "type": "text", "analyzer": "english_analyzer", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "description":      { "type": "text", "analyzer": "english_analyzer" },
      "category":         { "type": "keyword" },
      "instructor":       { "type": "text", "analyzer": "english_analyzer", "fields": { "keyword": { "type": "keyword" } } },
      "level":            { "type": "keyword" },
      "duration_hours":   { "type": "integer" },
      "price":            { "type": "long" },
      "enrollment_count": { "type": "long" },
      "rating":           { "type": "float" },
      "tags":             { "type": "keyword" },
      "status":           { "type": "keyword" },
      "created_at":       { "type": "date" },
      "updated_at":       { "type": "date" }
    }
  }
}`
}
