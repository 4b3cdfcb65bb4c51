/*
 * Copyright 2020, Cossack Labs Limited
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/logging"
	"github.com/identityclient/cachekeystore/utils"
)

// RunPrometheusHTTPHandler run in goroutine http server that listens on address and exports
// prometheus metrics from default registry on /metrics
func RunPrometheusHTTPHandler(address string) (net.Listener, *http.Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Handler: mux, ReadTimeout: DefaultNetworkTimeout, WriteTimeout: DefaultNetworkTimeout}
	go func() {
		log.WithField("address", listener.Addr().String()).Infoln("Start prometheus http handler")
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField(logging.FieldKeyEventCode, logging.EventCodeErrorPrometheusHTTPHandler).WithError(err).Errorln("Error from HTTP server that process prometheus metrics")
		}
	}()
	return listener, server, nil
}

// serviceNameToLabelFormat convert service name to lower case and remove all '-'
// ex. cachekeystore-tool will be changed to cachekeystoretool
func serviceNameToLabelFormat(serviceName string) string {
	const replaceAll = -1
	return strings.ToLower(strings.Replace(serviceName, "-", "", replaceAll))
}

// BuildInfoVersionLabel is label of build info metric with version value
const BuildInfoVersionLabel = "version"

var (
	majorVersionGauge     *prometheus.GaugeVec
	minorVersionGauge     *prometheus.GaugeVec
	patchVersionGauge     *prometheus.GaugeVec
	buildInfoCounter      *prometheus.CounterVec
	registerBuildInfoLock = sync.Once{}
)

func newVersionGauge(serviceName, part string) *prometheus.GaugeVec {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: serviceNameToLabelFormat(serviceName) + "_version_" + part,
			Help: part + " number of version",
		}, []string{})
	prometheus.MustRegister(gauge)
	return gauge
}

// exportVersionMetric set values for version metrics
func exportVersionMetric(version *utils.Version) {
	majorVersionGauge.With(nil).Set(version.MajorAsFloat64())
	minorVersionGauge.With(nil).Set(version.MinorAsFloat64())
	patchVersionGauge.With(nil).Set(version.PatchAsFloat64())
}

// RegisterBuildInfoMetrics registers metrics with build info and version numbers and exports them once
func RegisterBuildInfoMetrics(serviceName string) error {
	version, err := utils.GetParsedVersion()
	if err != nil {
		return err
	}
	registerBuildInfoLock.Do(func() {
		buildInfoCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceNameToLabelFormat(serviceName) + "_build_info",
				Help: "Build info of " + serviceName,
			}, []string{BuildInfoVersionLabel})
		prometheus.MustRegister(buildInfoCounter)
		buildInfoCounter.With(prometheus.Labels{BuildInfoVersionLabel: version.String()}).Inc()
		majorVersionGauge = newVersionGauge(serviceName, "major")
		minorVersionGauge = newVersionGauge(serviceName, "minor")
		patchVersionGauge = newVersionGauge(serviceName, "patch")
		exportVersionMetric(version)
	})
	return nil
}
