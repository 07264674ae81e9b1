/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// SetValue sets a configuration value for the specified key.
func SetValue(key string, value interface{}) {
	viper.Set(key, value)
}

// LoadConfig loads configuration from the specified file path.
// Every key can be overridden from the environment with `__` as the
// path separator, e.g. AUTOROUTER__MAX_BYTES overrides autorouter.max_bytes.
func LoadConfig(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()
	return viper.ReadInConfig()
}

func getString(key, defaultValue string) string {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetString(key)
}

func getBool(key string, defaultValue bool) bool {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetBool(key)
}

func getInt(key string, defaultValue int) int {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetInt(key)
}

func getInt64(key string, defaultValue int64) int64 {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetInt64(key)
}

func getFloat(key string, defaultValue float64) float64 {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetFloat64(key)
}

func getStrings(key string) []string {
	val := viper.GetString(key)
	return removeBlank(strings.Split(val, ","))
}

func removeBlank(slice []string) []string {
	var result []string
	for _, val := range slice {
		if trim := strings.TrimSpace(val); trim != "" {
			result = append(result, trim)
		}
	}
	return result
}

// GetServerPort returns the API server port.
func GetServerPort() int {
	return getInt(serverPort, 8080)
}

// IsHealthCheckEnabled returns whether health checks are enabled.
func IsHealthCheckEnabled() bool {
	return getBool(healthCheckEnable, true)
}

// IsMetricsEnabled returns whether the Prometheus endpoint is enabled.
func IsMetricsEnabled() bool {
	return getBool(metricsEnable, true)
}

func GetDBHost() string {
	return getString(dbHost, "localhost")
}

func GetDBPort() int {
	return getInt(dbPort, 5432)
}

func GetDBName() string {
	return getString(dbName, "custos")
}

func GetDBUser() string {
	return getString(dbUser, "custos")
}

func GetDBPassword() string {
	return getString(dbPassword, "")
}

func GetDBSslMode() string {
	return getString(dbSslMode, "disable")
}

func GetDBMaxOpenConns() int {
	return getInt(dbMaxOpenConns, 50)
}

func GetDBMaxIdleConns() int {
	return getInt(dbMaxIdleConns, 10)
}

func GetDBMaxLifetimeSecond() int {
	return getInt(dbMaxLifetime, 3600)
}

func GetDBMaxIdleTimeSecond() int {
	return getInt(dbMaxIdleTimeSecond, 600)
}

func GetDBConnectTimeoutSecond() int {
	return getInt(dbConnectTimeoutSecond, 10)
}

func GetDBRequestTimeoutSecond() int {
	return getInt(dbRequestTimeoutSecond, 30)
}

// GetAutoRouterMaxBytes returns the per-item route byte threshold.
func GetAutoRouterMaxBytes() int64 {
	return getInt64(autoRouterMaxBytes, 107374182400)
}

// GetAutoRouterMaxItems returns the per-item route item threshold.
func GetAutoRouterMaxItems() int64 {
	return getInt64(autoRouterMaxItems, 500000)
}

func GetAutoRouterConfidenceHigh() int {
	return getInt(autoRouterConfidenceHigh, 90)
}

func GetAutoRouterConfidenceMedium() int {
	return getInt(autoRouterConfidenceMedium, 80)
}

func GetAutoRouterConfidenceLow() int {
	return getInt(autoRouterConfidenceLow, 70)
}

// GetAutoRouterProfileTTLSecond returns how long custodian profiles stay cached.
func GetAutoRouterProfileTTLSecond() int {
	return getInt(autoRouterProfileTTLSecond, 600)
}

// GetShardMaxWindowDays returns the widest date window a shard may span.
func GetShardMaxWindowDays() int {
	return getInt(shardMaxWindowDays, 30)
}

func GetShardMaxBytes() int64 {
	return getInt64(shardMaxBytes, 50*1024*1024*1024)
}

func GetShardMaxItems() int64 {
	return getInt64(shardMaxItems, 250000)
}

func GetShardMaxPerCustodian() int {
	return getInt(shardMaxPerCustodian, 12)
}

func IsShardAdaptive() bool {
	return getBool(shardAdaptive, true)
}

func IsShardAlignCalendar() bool {
	return getBool(shardAlignCalendar, true)
}

func GetShardMinWindowDays() int {
	return getInt(shardMinWindowDays, 1)
}

func GetShardMaxRetries() int {
	return getInt(shardMaxRetries, 3)
}

func GetShardMaxTotalShards() int {
	return getInt(shardMaxTotalShards, 1000)
}

// GetLeaseDurationSecond returns how long a claimed shard lease lives.
func GetLeaseDurationSecond() int {
	return getInt(schedulerLeaseDurationSecond, 1800)
}

// GetReapIntervalSecond returns the sweep period for expired leases.
func GetReapIntervalSecond() int {
	return getInt(schedulerReapIntervalSecond, 60)
}

func GetDeltaMaxAgeDays() int {
	return getInt(deltaMaxAgeDays, 30)
}

func GetDeltaMaxFailures() int {
	return getInt(deltaMaxFailures, 3)
}

// GetReconcileSizeTolerancePct returns the size gate tolerance in percent.
func GetReconcileSizeTolerancePct() float64 {
	return getFloat(reconcileSizeTolerancePct, 0.1)
}

// GetReconcileExtraTolerancePct returns the extras gate tolerance in percent.
func GetReconcileExtraTolerancePct() float64 {
	return getFloat(reconcileExtraTolerance, 0.05)
}

func IsReconcileRequireHashMatch() bool {
	return getBool(reconcileRequireHashMatch, false)
}

func IsReconcileNormalizePaths() bool {
	return getBool(reconcileNormalizePaths, true)
}

func IsReconcileIncludeFolders() bool {
	return getBool(reconcileIncludeFolders, false)
}

func GetReconcileReportsDir() string {
	return getString(reconcileReportsDir, "reports")
}

// GetArtifactBackend returns the artifact store backend, "fs" or "s3".
func GetArtifactBackend() string {
	return getString(artifactBackend, "fs")
}

// GetArtifactRoot returns the filesystem store root directory.
func GetArtifactRoot() string {
	return getString(artifactRoot, "/var/lib/custos")
}

func IsS3Enable() bool {
	return getBool(s3Enable, false)
}

func GetS3AccessKey() string {
	return getString(s3AccessKey, "")
}

func GetS3SecretKey() string {
	return getString(s3SecretKey, "")
}

func GetS3Bucket() string {
	return getString(s3Bucket, "")
}

func GetS3Endpoint() string {
	return getString(s3Endpoint, "")
}

func GetS3ExpireDay() int32 {
	return int32(getInt(s3ExpireDay, 0))
}

// IsWorkerEnabled returns whether the embedded collector worker pool runs.
func IsWorkerEnabled() bool {
	return getBool(workerEnable, true)
}

// GetWorkerId returns the worker identity presented to the scheduler.
func GetWorkerId() string {
	return getString(workerId, "")
}

func GetWorkerMaxConcurrentShards() int {
	return getInt(workerMaxConcurrentShards, 4)
}

func GetWorkerPollIntervalSecond() int {
	return getInt(workerPollIntervalSecond, 5)
}

// GetWorkerLeaseSlackSecond returns the slack subtracted from the lease
// expiry when deriving collector deadlines.
func GetWorkerLeaseSlackSecond() int {
	return getInt(workerLeaseSlackSecond, 60)
}

func GetQueueTriggerTopic() string {
	return getString(queueTriggerTopic, "bulk-trigger")
}

func GetQueueStatusTopic() string {
	return getString(queueStatusTopic, "bulk-status")
}

func GetQueuePollIntervalSecond() int {
	return getInt(queuePollIntervalSecond, 10)
}

func GetQueueProcessTimeoutSecond() int {
	return getInt(queueProcessTimeoutSecond, 600)
}

func GetQueueMaxRetries() int {
	return getInt(queueMaxRetries, 5)
}

func GetQueueRetentionHour() int {
	return getInt(queueRetentionHour, 72)
}

// GetBulkDatasetEndpoint returns the base URL the binary fetcher downloads from.
func GetBulkDatasetEndpoint() string {
	return getString(bulkDatasetEndpoint, "")
}

func GetBulkFetchConcurrency() int {
	return getInt(bulkFetchConcurrency, 8)
}

// GetSourceEndpoint returns the base URL of the per-item connector.
func GetSourceEndpoint() string {
	return getString(sourceEndpoint, "")
}

func GetSourcePageSize() int {
	return getInt(sourcePageSize, 100)
}

// GetQuotaLimitBytes returns the per-custodian byte budget consulted by
// the AutoRouter.
func GetQuotaLimitBytes() int64 {
	return getInt64(quotaLimitBytes, 5497558138880) // 5 TiB
}

func GetQuotaLimitItems() int64 {
	return getInt64(quotaLimitItems, 1000000)
}

func IsManifestSignEnabled() bool {
	return getBool(manifestSignEnable, false)
}

func GetManifestSigningKeyPath() string {
	return getString(manifestSigningKeyPath, "")
}

func IsNotificationEnabled() bool {
	return getBool(notificationEnable, false)
}

func GetNotificationSMTPHost() string {
	return getString(notificationSMTPHost, "")
}

func GetNotificationSMTPPort() int {
	return getInt(notificationSMTPPort, 587)
}

func GetNotificationUsername() string {
	return getString(notificationUsername, "")
}

func GetNotificationPassword() string {
	return getString(notificationPassword, "")
}

func GetNotificationFrom() string {
	return getString(notificationFrom, "")
}

func IsNotificationUseTLS() bool {
	return getBool(notificationUseTLS, false)
}

// GetNotificationTo returns the comma-separated recipient list.
func GetNotificationTo() []string {
	return getStrings(notificationTo)
}

// GetNotificationTopics returns which job outcomes trigger a notification.
func GetNotificationTopics() []string {
	if !viper.IsSet(notificationTopics) {
		return []string{"Failed", "PartiallyCompleted"}
	}
	return getStrings(notificationTopics)
}
