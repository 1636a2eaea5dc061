// Package jobs contains the concrete task types the platform schedules:
// transformer training and prediction, lightweight model fitting, 2-D
// projection, and feature extraction. The numeric work itself lives
// behind collaborator interfaces; each job owns parameter validation,
// progress logging, and cooperative cancellation.
package jobs
