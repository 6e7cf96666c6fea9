package config

const schema = `{
  "type": "object",
  "required": ["app"],
  "properties": {
    "aws": {
      "type": "object",
      "properties": {
        "access_key": {"type": "string"},
        "secret_key": {"type": "string"},
        "region": {"type": "string"},
        "bucket": {"type": "string"},
        "bucket_path": {"type": "string"}
      }
    },
    "app": {
      "type": "object",
      "required": ["app_name"],
      "properties": {
        "app_name": {"type": "string"},
        "versions_to_keep": {"type": ["integer", "string"]},
        "all_environments": {"type": ["object", "null"]},
        "environments": {
          "type": ["object", "null"],
          "additionalProperties": {"type": ["object", "null"]}
        }
      }
    },
    "metrics": {
      "type": "object",
      "properties": {
        "pushgateway": {"type": "string"}
      }
    }
  }
}`
