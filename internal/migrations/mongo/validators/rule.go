package validators

import "go.mongodb.org/mongo-driver/bson"

const (
	datePattern = `^\d{4}-\d{2}-\d{2}$`
	timePattern = `^([01]\d|2[0-3]):[0-5]\d$`
)

var AvailabilityRuleValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"provider_id",
			"title",
			"recurrence_kind",
			"start_date",
			"start_time",
			"end_time",
			"slot_duration_minutes",
			"time_zone",
			"location_kind",
			"appointment_kind",
			"is_active",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"provider_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"title": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"recurrence_kind": bson.M{
				"bsonType": "string",
				"enum":     []string{"ONE_TIME", "DAILY", "WEEKLY", "CUSTOM"},
			},

			"day_of_week": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  7,
			},

			"custom_dates": bson.M{
				"bsonType": "array",
				"items":    bson.M{"bsonType": "string", "pattern": datePattern},
			},

			"start_date": bson.M{
				"bsonType": "string",
				"pattern":  datePattern,
			},

			"end_date": bson.M{
				"bsonType": "string",
				"pattern":  datePattern,
			},

			"start_time": bson.M{
				"bsonType": "string",
				"pattern":  timePattern,
			},

			"end_time": bson.M{
				"bsonType": "string",
				"pattern":  timePattern,
			},

			"slot_duration_minutes": bson.M{
				"bsonType": "int",
				"minimum":  5,
				"maximum":  480,
			},

			"buffer_minutes": bson.M{
				"bsonType": "int",
				"minimum":  0,
				"maximum":  120,
			},

			"time_zone": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"location_kind": bson.M{
				"bsonType": "string",
				"enum":     []string{"IN_PERSON", "VIRTUAL"},
			},

			"appointment_kind": bson.M{
				"bsonType": "string",
				"enum": []string{
					"CONSULTATION",
					"FOLLOW_UP",
					"PROCEDURE",
					"THERAPY",
					"ROUTINE_CHECKUP",
					"EMERGENCY",
				},
			},

			"max_advance_booking_days": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  365,
			},

			"min_advance_booking_hours": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},

			"excluded_dates": bson.M{
				"bsonType": "array",
				"items":    bson.M{"bsonType": "string", "pattern": datePattern},
			},

			"is_active": bson.M{
				"bsonType": "bool",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
